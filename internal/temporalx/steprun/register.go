package steprun

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
)

// Registry is satisfied by worker.Worker and the SDK test environment.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func Register(r Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.Init, activity.RegisterOptions{Name: ActivityInit})
	r.RegisterActivityWithOptions(acts.Step, activity.RegisterOptions{Name: ActivityStep})
	r.RegisterActivityWithOptions(acts.Finish, activity.RegisterOptions{Name: ActivityFinish})
	r.RegisterActivityWithOptions(acts.Fail, activity.RegisterOptions{Name: ActivityFail})
}
