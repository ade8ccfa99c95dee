package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// These commands talk to a running daemon over its HTTP API.

var adminAccount string

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)

	for _, cmd := range []*cobra.Command{pauseCmd, resumeCmd} {
		cmd.Flags().StringVar(&adminAccount, "account", "", "acting account (requires root arbitration authority)")
		cmd.MarkFlagRequired("account")
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiRequest("GET", "/v1/status", "")
		if err != nil {
			return err
		}
		fmt.Printf("expenditures: %.0f\n", body["expenditures"].(float64))
		fmt.Printf("pots:         %.0f\n", body["pots"].(float64))
		fmt.Printf("stopped:      %v\n", body["stopped"])
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause all mutating operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest("POST", "/v1/admin/pause", adminAccount); err != nil {
			return err
		}
		fmt.Println("paused")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume mutating operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest("POST", "/v1/admin/resume", adminAccount); err != nil {
			return err
		}
		fmt.Println("resumed")
		return nil
	},
}

// apiRequest sends one request to the local daemon and decodes the JSON
// response. A non-2xx status becomes an error carrying the server message.
func apiRequest(method, path, account string) (map[string]interface{}, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, "http://"+cfg.API.Addr()+path, nil)
	if err != nil {
		return nil, err
	}
	if account != "" {
		req.Header.Set("X-Escrowd-Account", account)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		if msg, ok := body["error"].(string); ok {
			return nil, fmt.Errorf("%s", msg)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
