package v1alpha1

func StringToJobStatus(s string) (JobStatus, bool) {
	switch s {
	case string(JobStatusPending):
		return JobStatusPending, true
	case string(JobStatusProcessing):
		return JobStatusProcessing, true
	case string(JobStatusCompleted):
		return JobStatusCompleted, true
	case string(JobStatusFailed):
		return JobStatusFailed, true
	default:
		return "", false
	}
}

func StringToJobStage(s string) (JobStage, bool) {
	switch s {
	case string(JobStageValidating):
		return JobStageValidating, true
	case string(JobStageGenerating):
		return JobStageGenerating, true
	case string(JobStageStoring):
		return JobStageStoring, true
	case string(JobStageWatermarking):
		return JobStageWatermarking, true
	case string(JobStageComplete):
		return JobStageComplete, true
	case string(JobStageFailed):
		return JobStageFailed, true
	default:
		return "", false
	}
}
