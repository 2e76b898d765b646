package app

import "fmt"

// PromptTemplate is a canned operator conversation with its required arguments.
type PromptTemplate struct {
	Name         string
	Description  string
	Template     string
	RequiredArgs []string
}

func (t PromptTemplate) Render(args ...any) string {
	return fmt.Sprintf(t.Template, args...)
}

// DeploymentDoctorPrompt walks the assistant through a failed deployment.
func DeploymentDoctorPrompt() PromptTemplate {
	return PromptTemplate{
		Name:        "deployment_doctor",
		Description: "Diagnose why the last deployment of an application failed",
		Template: `The last deployment of the application with id "%s" did not succeed. Find out why.

1. Call get_app to read its status and git source. An application stuck in "building"
   with no running job points at a worker that stopped mid-deployment.
2. Call get_app_logs and read the output up to the end:failure entry. Look for build
   errors, missing buildpacks, failed healthchecks or "does not exist" messages from Dokku.
3. Call get_activity to see which deployments succeeded before and who triggered them.
4. If a job id is known, call get_job for its attempts and last error. Several attempts
   mean the Dokku host was unreachable.
5. Check whether the application was deleted on failure. If so, a new deployment
   recreates it from scratch; suggest delete_on_failed=false to keep it for inspection.

Report the root cause, the evidence from the logs, and the tool call that would fix it.`,
		RequiredArgs: []string{"app_id"},
	}
}
