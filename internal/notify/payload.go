package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// Discord embed colors by outcome.
const (
	ColorSurvived = 0x2ECC71
	ColorKilled   = 0xE74C3C
	ColorMIA      = 0xE67E22
	ColorTransit  = 0x5865F2
	ColorNeutral  = 0x95A5A6
)

// MaxEmbedsPerRequest is the Discord API limit for embeds per message.
const MaxEmbedsPerRequest = 10

// maxLinesPerEmbed keeps grouped descriptions under Discord's length limit.
const maxLinesPerEmbed = 15

// DiscordPayload represents a Discord webhook request body.
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed.
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
}

// DiscordField is one name/value cell of an embed.
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Raid is one queued notification.
type Raid struct {
	Account string
	Record  *raid.ArchivedRecord
}

// BuildPayloads renders queued raids as embeds, one per account in order
// of first appearance, split across as many payloads as the embed limit
// requires.
func BuildPayloads(raids []Raid) []DiscordPayload {
	var order []string
	byAccount := map[string][]*raid.ArchivedRecord{}
	for _, r := range raids {
		if r.Record == nil {
			continue
		}
		if _, ok := byAccount[r.Account]; !ok {
			order = append(order, r.Account)
		}
		byAccount[r.Account] = append(byAccount[r.Account], r.Record)
	}

	embeds := make([]DiscordEmbed, 0, len(order))
	for _, account := range order {
		recs := byAccount[account]
		if len(recs) == 1 {
			embeds = append(embeds, raidEmbed(account, recs[0]))
		} else {
			embeds = append(embeds, groupEmbed(account, recs))
		}
	}
	return splitIntoPayloads(embeds)
}

func raidEmbed(account string, rec *raid.ArchivedRecord) DiscordEmbed {
	desc := fmt.Sprintf("Account `%s` · match `%s`", account, rec.MatchID)
	if rec.Inferred {
		desc += "\n_exit state inferred from stored profile_"
	}

	fields := []DiscordField{
		{Name: "Net", Value: signedRoubles(rec.Totals.Net()), Inline: true},
		{Name: "Gross profit", Value: roubles(rec.Totals.GrossProfit), Inline: true},
		{Name: "Combat losses", Value: roubles(rec.Totals.CombatLosses), Inline: true},
		{Name: "Entry value", Value: roubles(rec.Totals.EntryValue), Inline: true},
	}
	if rec.Result.ExitName != "" {
		fields = append(fields, DiscordField{Name: "Exit", Value: rec.Result.ExitName, Inline: true})
	}
	if rec.Result.Stats != nil && len(rec.Result.Stats.Victims) > 0 {
		fields = append(fields, DiscordField{Name: "Kills", Value: fmt.Sprint(len(rec.Result.Stats.Victims)), Inline: true})
	}
	if rec.Result.PlayTimeSeconds > 0 {
		fields = append(fields, DiscordField{
			Name:   "Time in raid",
			Value:  (time.Duration(rec.Result.PlayTimeSeconds) * time.Second).String(),
			Inline: true,
		})
	}

	return DiscordEmbed{
		Title:       title(rec),
		Description: desc,
		Color:       outcomeColor(rec.Result.Outcome),
		Timestamp:   timestamp(rec),
		Fields:      fields,
	}
}

func groupEmbed(account string, recs []*raid.ArchivedRecord) DiscordEmbed {
	var (
		net   int64
		lines []string
	)
	for i, rec := range recs {
		net += rec.Totals.Net()
		if i < maxLinesPerEmbed {
			lines = append(lines, fmt.Sprintf("%s · %s", title(rec), signedRoubles(rec.Totals.Net())))
		}
	}
	if extra := len(recs) - maxLinesPerEmbed; extra > 0 {
		lines = append(lines, fmt.Sprintf("…and %d more", extra))
	}

	last := recs[len(recs)-1]
	return DiscordEmbed{
		Title:       fmt.Sprintf("%d raids · %s", len(recs), signedRoubles(net)),
		Description: fmt.Sprintf("Account `%s`\n%s", account, strings.Join(lines, "\n")),
		Color:       outcomeColor(last.Result.Outcome),
		Timestamp:   timestamp(last),
	}
}

func title(rec *raid.ArchivedRecord) string {
	side := "PMC"
	if rec.Side == raid.SideSavage {
		side = "Scav"
	}
	outcome := strings.ReplaceAll(string(rec.Result.Outcome), "_", " ")
	return fmt.Sprintf("%s raid: %s", side, outcome)
}

func outcomeColor(o raid.Outcome) int {
	switch o {
	case raid.OutcomeSurvived, raid.OutcomeRunner:
		return ColorSurvived
	case raid.OutcomeTransit:
		return ColorTransit
	case raid.OutcomeKilled:
		return ColorKilled
	case raid.OutcomeMIA:
		return ColorMIA
	default:
		return ColorNeutral
	}
}

func timestamp(rec *raid.ArchivedRecord) string {
	if rec.EndedAt.IsZero() {
		return ""
	}
	return rec.EndedAt.UTC().Format(time.RFC3339)
}

func roubles(v int64) string {
	return humanize.Comma(v) + " ₽"
}

func signedRoubles(v int64) string {
	if v > 0 {
		return "+" + roubles(v)
	}
	return roubles(v)
}

func splitIntoPayloads(embeds []DiscordEmbed) []DiscordPayload {
	if len(embeds) == 0 {
		return nil
	}
	var payloads []DiscordPayload
	for i := 0; i < len(embeds); i += MaxEmbedsPerRequest {
		end := min(i+MaxEmbedsPerRequest, len(embeds))
		payloads = append(payloads, DiscordPayload{Embeds: embeds[i:end]})
	}
	return payloads
}
