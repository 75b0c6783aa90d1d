package modlog

import (
	"fmt"
	"strings"
	"time"
)

// timeLayout is the absolute timestamp format used in case messages.
const timeLayout = "2006-01-02 15:04:05 UTC"

// Message renders a case into its notification message. The rendering
// is deterministic: header, user, moderator, until/duration, amended-by,
// last-modified, reason, in that order. prefix is the community's
// command prefix, used in the placeholder shown for an unset reason.
func Message(c *Case, prefix string) string {
	var sb strings.Builder
	action := c.Action.Label() + " " + c.Action.Icon()
	if c.Channel != "" {
		action += " in <#" + c.Channel + ">"
	}
	fmt.Fprintf(&sb, "**Case #%d** | %s\n", c.Seq, action)
	fmt.Fprintf(&sb, "**User:** %s (%s)\n", c.User.Name, c.User.ID)
	if c.Moderator != nil {
		fmt.Fprintf(&sb, "**Moderator:** %s (%s)\n", c.Moderator.Name, c.Moderator.ID)
	} else {
		fmt.Fprintf(&sb, "**Moderator:** Unknown (Nobody has claimed responsibility yet)\n")
	}
	if !c.Created.IsZero() && !c.Until.IsZero() {
		fmt.Fprintf(&sb, "**Until:** %s\n", c.Until.UTC().Format(timeLayout))
		fmt.Fprintf(&sb, "**Duration:** %s\n", duration(c.Until.Sub(c.Created)))
	}
	if c.AmendedBy != nil {
		fmt.Fprintf(&sb, "**Amended by:** %s (%s)\n", c.AmendedBy.Name, c.AmendedBy.ID)
	}
	if !c.Modified.IsZero() {
		fmt.Fprintf(&sb, "**Last modified:** %s\n", c.Modified.UTC().Format(timeLayout))
	}
	if c.Reason != "" {
		fmt.Fprintf(&sb, "**Reason:** %s\n", c.Reason)
	} else {
		fmt.Fprintf(&sb, "**Reason:** Type %sreason %d <reason> to add it\n", prefix, c.Seq)
	}
	return sb.String()
}

// duration formats a duration as a compact human string, omitting
// zero-valued units: "2 days 3 hrs 4 min 5 sec".
func duration(d time.Duration) string {
	var s []string
	secs := int(d / time.Second)
	if days := secs / 86400; days > 0 {
		u := fmt.Sprintf("%d day", days)
		if days > 1 {
			u += "s"
		}
		s = append(s, u)
	}
	if hrs := secs / 3600 % 24; hrs > 0 {
		u := fmt.Sprintf("%d hr", hrs)
		if hrs > 1 {
			u += "s"
		}
		s = append(s, u)
	}
	if mins := secs / 60 % 60; mins > 0 {
		s = append(s, fmt.Sprintf("%d min", mins))
	}
	if rem := secs % 60; rem > 0 {
		s = append(s, fmt.Sprintf("%d sec", rem))
	}
	return strings.Join(s, " ")
}
