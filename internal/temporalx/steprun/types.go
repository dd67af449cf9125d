package steprun

const (
	WorkflowName   = "step_run"
	ActivityInit   = "step_run_init"
	ActivityStep   = "step_run_step"
	ActivityFinish = "step_run_finish"
	ActivityFail   = "step_run_fail"
)

type InitResult struct {
	Steps []string `json:"steps"`
	Done  bool     `json:"done"`
}

type StepInput struct {
	JobID string `json:"job_id"`
	Step  string `json:"step"`
}

type FailInput struct {
	JobID   string `json:"job_id"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}
