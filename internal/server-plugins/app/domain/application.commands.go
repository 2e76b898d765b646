package app

// ApplicationCommand represents the Dokku commands the app manager issues.
type ApplicationCommand string

const (
	CommandAppsCreate        ApplicationCommand = "apps:create"
	CommandAppsDestroy       ApplicationCommand = "apps:destroy"
	CommandAppsExists        ApplicationCommand = "apps:exists"
	CommandGitFromImage      ApplicationCommand = "git:from-image"
	CommandLetsencryptEnable ApplicationCommand = "letsencrypt:enable"
	CommandPsRebuild         ApplicationCommand = "ps:rebuild"
)

func (c ApplicationCommand) IsValid() bool {
	switch c {
	case CommandAppsCreate, CommandAppsDestroy, CommandAppsExists, CommandGitFromImage, CommandLetsencryptEnable, CommandPsRebuild:
		return true
	default:
		return false
	}
}

func (c ApplicationCommand) String() string {
	return string(c)
}
