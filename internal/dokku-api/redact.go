package dokkuApi

import "strings"

const redacted = "[redacted]"

// sensitiveArgs lists, per command, the argument positions that must never reach a log line.
var sensitiveArgs = map[string][]int{
	"git:auth": {2},
}

// RedactArgs returns a copy of args safe to log.
func RedactArgs(command string, args []string) []string {
	out := make([]string, len(args))
	copy(out, args)

	for _, idx := range sensitiveArgs[command] {
		if idx < len(out) {
			out[idx] = redacted
		}
	}

	if command == "config:set" {
		for i, arg := range out {
			if key, _, ok := strings.Cut(arg, "="); ok && !strings.HasPrefix(arg, "-") {
				out[i] = key + "=" + redacted
			}
		}
	}

	return out
}

// RedactCommand renders command and args as a single redacted line.
func RedactCommand(command string, args []string) string {
	return joinCommand(command, RedactArgs(command, args))
}

func joinCommand(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
