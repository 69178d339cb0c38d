package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sakif/estudogame/internal/client"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func printUser(w io.Writer, u *client.User) {
	fmt.Fprintf(w, "%s <%s>\n", u.Name, u.Email)
	fmt.Fprintf(w, "Points:  %d\n", u.TotalPoints)
	if u.AvatarURL != "" {
		fmt.Fprintf(w, "Avatar:  %s\n", u.AvatarURL)
	}
	fmt.Fprintf(w, "Member since %s\n", client.FormatDate(u.CreatedAt))
}

func printChallenge(w io.Writer, c *client.Challenge) {
	fmt.Fprintf(w, "#%d %s\n", c.ID, c.Name)
	if c.Description != "" {
		fmt.Fprintf(w, "%s\n", c.Description)
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "Subject:\t%s\n", c.Subject)
	fmt.Fprintf(tw, "Creator:\t%s\n", orDash(c.CreatorName))
	fmt.Fprintf(tw, "Participants:\t%d\n", c.ParticipantsCount)
	fmt.Fprintf(tw, "Starts:\t%s\n", client.FormatDate(c.StartDate))
	fmt.Fprintf(tw, "Ends:\t%s\n", endDate(c))
	fmt.Fprintf(tw, "Status:\t%s\n", status(c))
	tw.Flush()
}

func printRanking(w io.Writer, ranking []client.RankingEntry) {
	if len(ranking) == 0 {
		fmt.Fprintln(w, "No participants yet.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "POS\tNAME\tPOINTS")
	for _, e := range ranking {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", e.Position, e.Name, e.TotalPoints)
	}
	tw.Flush()
}

func endDate(c *client.Challenge) string {
	if c.EndDate == nil {
		return "no end date"
	}
	return client.FormatDate(*c.EndDate)
}

func status(c *client.Challenge) string {
	if c.IsActive {
		return "active"
	}
	return "finished"
}
