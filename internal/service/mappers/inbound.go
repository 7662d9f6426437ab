package mappers

import (
	"github.com/retrato-ai/retrato/internal/store/model"
)

// JobCreateForm is the validated input to job creation.
type JobCreateForm struct {
	SourceKey string
	Preset    string
}

func (f JobCreateForm) ToJob() model.Job {
	return model.NewJob(f.SourceKey, f.Preset)
}
