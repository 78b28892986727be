package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/forest-guardian/planet-ndvi/internal/pipeline"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed   = 16711680
	colorGreen = 65280
	colorAmber = 16753920
)

// discordLimit is the embed description limit in characters.
const discordLimit = 4096

// Discord posts run notifications to webhook URLs. An empty URL disables that
// kind of message.
type Discord struct {
	ErrorURL   string
	SuccessURL string
	Client     *http.Client
}

func (d Discord) SendError(errorMessage string) error {
	return d.send(d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Error Notification",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d Discord) SendSuccess(successMessage string) error {
	return d.send(d.SuccessURL, DiscordEmbed{
		Title:       "✅ Success Notification",
		Description: successMessage,
		Color:       colorGreen,
	})
}

// SendRunSummary reports one AOI run, listing failed scenes.
func (d Discord) SendRunSummary(summary pipeline.Summary) error {
	failures := summary.Failures()
	embed := DiscordEmbed{
		Title:       fmt.Sprintf("NDVI run %s", strings.ToUpper(summary.AOI)),
		Description: SummaryText(summary),
		Color:       colorGreen,
	}
	url := d.SuccessURL
	if len(failures) > 0 {
		embed.Color = colorAmber
		if d.ErrorURL != "" {
			url = d.ErrorURL
		}
	}
	return d.send(url, embed)
}

// SummaryText renders the run summary shown to users.
func SummaryText(summary pipeline.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d processed, %d skipped, %d rejected, %d failed of %d scenes in %s",
		summary.Processed(), summary.Skipped(), summary.Rejected(), len(summary.Failures()), len(summary.Scenes),
		summary.Finished.Sub(summary.Started).Round(1e9))
	for _, f := range summary.Failures() {
		fmt.Fprintf(&b, "\n- %s (%s) at %s: %v", f.SceneID, f.Acquired.Format("2006-01-02 15:04"), f.State, f.Err)
	}
	return b.String()
}

// truncate shortens s to at most limit characters, ending in "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

func (d Discord) send(url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	embed.Description = truncate(embed.Description, discordLimit)

	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
