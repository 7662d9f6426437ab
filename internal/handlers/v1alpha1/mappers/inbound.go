package mappers

import (
	"github.com/retrato-ai/retrato/api/v1alpha1"
	"github.com/retrato-ai/retrato/internal/service/mappers"
)

func JobFormFromApi(resource v1alpha1.CreateJobRequest) mappers.JobCreateForm {
	return mappers.JobCreateForm{
		SourceKey: resource.SourceKey,
		Preset:    resource.Preset,
	}
}
