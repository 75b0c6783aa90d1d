package main

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/wardenbot/warden/command"
	"github.com/wardenbot/warden/community"
	"github.com/wardenbot/warden/platform"
)

// dispatch parses and runs a command invocation, if the message is one.
// The actor is the sender with their roles resolved; nil means the
// resolution failed and no command may run.
func (w *Warden) dispatch(ctx context.Context, cm *community.Community, m *platform.Message, actor *platform.Member, log *slog.Logger) {
	text, ok := strings.CutPrefix(m.Text, cm.Prefix())
	if !ok {
		return
	}
	if actor == nil {
		return
	}
	text = strings.TrimSpace(text)
	// Admin commands first; their verbs are more specific.
	c, args := findCommand(adminCommands, text)
	switch {
	case c != nil:
		if !w.rank.Admin(cm, actor) {
			log.InfoContext(ctx, "admin command refused", slog.String("name", c.name), slog.String("user", actor.ID))
			return
		}
	default:
		c, args = findCommand(modCommands, text)
		if c == nil {
			return
		}
		if !w.rank.Mod(cm, actor) {
			log.InfoContext(ctx, "mod command refused", slog.String("name", c.name), slog.String("user", actor.ID))
			return
		}
	}
	log.InfoContext(ctx, "command",
		slog.String("name", c.name),
		slog.String("user", actor.ID),
		slog.Any("args", args),
	)
	w.metrics.CommandCount.Observe(1, c.name)
	st := &command.Warden{
		Log:     slog.Default(),
		Owner:   w.owner.ID,
		Client:  w.client,
		Ledger:  w.ledger,
		Guard:   w.guard,
		Rank:    w.rank,
		Filter:  w.filter,
		Names:   w.names,
		Store:   w.settings,
		Metrics: w.metrics,
	}
	inv := command.Invocation{
		Community: cm,
		Message:   m,
		Actor:     actor,
		Args:      args,
	}
	c.fn(ctx, st, &inv)
	w.deleteLater(ctx, cm, m)
}

// adminInvocation reports whether a message invokes an admin command,
// without checking the sender's standing.
func adminInvocation(cm *community.Community, text string) bool {
	text, ok := strings.CutPrefix(text, cm.Prefix())
	if !ok {
		return false
	}
	c, _ := findCommand(adminCommands, strings.TrimSpace(text))
	return c != nil
}

type chatCommand struct {
	parse *regexp.Regexp
	fn    command.Func
	name  string
}

func findCommand(cmds []chatCommand, text string) (*chatCommand, map[string]string) {
	for i := range cmds {
		c := &cmds[i]
		u := c.parse.FindStringSubmatch(text)
		switch len(u) {
		case 0:
			continue
		case 1:
			return c, nil
		default:
			m := make(map[string]string, len(u)-1)
			s := c.parse.SubexpNames()
			for k, v := range u[1:] {
				m[s[k+1]] = v
			}
			return c, m
		}
	}
	return nil, nil
}

// modCommands are available to moderators and up.
var modCommands = []chatCommand{
	{
		parse: regexp.MustCompile(`^(?i:kick)\s+(?<user>\S+)\s*(?<reason>.*)$`),
		fn:    command.Kick,
		name:  "kick",
	},
	{
		parse: regexp.MustCompile(`^(?i:ban)\s+(?<user>\S+)(?:\s+(?<days>\S+))?\s*(?<reason>.*)$`),
		fn:    command.Ban,
		name:  "ban",
	},
	{
		parse: regexp.MustCompile(`^(?i:hackban)\s+(?<user>\S+)\s*(?<reason>.*)$`),
		fn:    command.Hackban,
		name:  "hackban",
	},
	{
		parse: regexp.MustCompile(`^(?i:softban)\s+(?<user>\S+)\s*(?<reason>.*)$`),
		fn:    command.Softban,
		name:  "softban",
	},
	{
		parse: regexp.MustCompile(`^(?i:mute)(?:\s+(?<scope>channel|server))?\s+(?<user>\S+)\s*(?<reason>.*)$`),
		fn:    command.Mute,
		name:  "mute",
	},
	{
		parse: regexp.MustCompile(`^(?i:unmute)(?:\s+(?<scope>channel|server))?\s+(?<user>\S+)$`),
		fn:    command.Unmute,
		name:  "unmute",
	},
	{
		parse: regexp.MustCompile(`^(?i:reason)(?:\s+(?<case>\S+))?\s*(?<reason>.*)$`),
		fn:    command.Reason,
		name:  "reason",
	},
	{
		parse: regexp.MustCompile(`^(?i:cleanup\s+messages)\s+(?<count>\d+)$`),
		fn:    command.Cleanup,
		name:  "cleanup messages",
	},
	{
		parse: regexp.MustCompile(`^(?i:cleanup\s+user)\s+(?<user>\S+)\s+(?<count>\d+)$`),
		fn:    command.Cleanup,
		name:  "cleanup user",
	},
	{
		parse: regexp.MustCompile(`^(?i:filter\s+add)\s+(?<words>.+)$`),
		fn:    command.FilterAdd,
		name:  "filter add",
	},
	{
		parse: regexp.MustCompile(`^(?i:filter\s+remove)\s+(?<words>.+)$`),
		fn:    command.FilterRemove,
		name:  "filter remove",
	},
	{
		parse: regexp.MustCompile(`^(?i:filter)(?:\s+list)?$`),
		fn:    command.FilterList,
		name:  "filter list",
	},
	{
		parse: regexp.MustCompile(`^(?i:names)\s+(?<user>\S+)$`),
		fn:    command.PastNames,
		name:  "names",
	},
	{
		parse: regexp.MustCompile(`^(?i:rename)\s+(?<user>\S+)\s*(?<nick>.*)$`),
		fn:    command.Rename,
		name:  "rename",
	},
}

// adminCommands are available to admins and up.
var adminCommands = []chatCommand{
	{
		parse: regexp.MustCompile(`^(?i:modset\s+modlog)(?:\s+(?<channel>\S+))?$`),
		fn:    command.ModLogSet,
		name:  "modset modlog",
	},
	{
		parse: regexp.MustCompile(`^(?i:modset\s+cases)(?:\s+(?<action>\S+))?$`),
		fn:    command.Cases,
		name:  "modset cases",
	},
	{
		parse: regexp.MustCompile(`^(?i:modset\s+hierarchy)$`),
		fn:    command.Hierarchy,
		name:  "modset hierarchy",
	},
	{
		parse: regexp.MustCompile(`^(?i:modset\s+deleterepeats)$`),
		fn:    command.DeleteRepeats,
		name:  "modset deleterepeats",
	},
	{
		parse: regexp.MustCompile(`^(?i:modset\s+banmentionspam)(?:\s+(?<threshold>\S+))?$`),
		fn:    command.BanMentionSpam,
		name:  "modset banmentionspam",
	},
	{
		parse: regexp.MustCompile(`^(?i:modset\s+deletedelay)(?:\s+(?<seconds>-?\d+))?$`),
		fn:    command.DeleteDelay,
		name:  "modset deletedelay",
	},
	{
		parse: regexp.MustCompile(`^(?i:modset\s+resetcases)$`),
		fn:    command.ResetCases,
		name:  "modset resetcases",
	},
	{
		parse: regexp.MustCompile(`^(?i:ignore)\s+(?<scope>channel|server)(?:\s+(?<channel>\S+))?$`),
		fn:    command.Ignore,
		name:  "ignore",
	},
	{
		parse: regexp.MustCompile(`^(?i:unignore)\s+(?<scope>channel|server)(?:\s+(?<channel>\S+))?$`),
		fn:    command.Unignore,
		name:  "unignore",
	},
}
