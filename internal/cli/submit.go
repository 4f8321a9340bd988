package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aegis/internal/client"
	"github.com/ppiankov/aegis/internal/model"
)

var submitAddr string

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitAddr, "addr", "", "Gate address (default server.grpc_addr from config)")
}

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Submit a signed command to a running gate",
	Long:  "Reads a signed command (JSON, as printed by `aegis sign`) from file or stdin,\nsends it to the gate and prints the decision. Exits 1 if rejected.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open command: %w", err)
		}
		defer f.Close()
		r = f
	}
	var raw model.RawCommand
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}

	addr := submitAddr
	if addr == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Server.GRPCAddr
	}

	c, err := client.New(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Submit(context.Background(), raw)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !resp.Decision.Accepted() {
		return fmt.Errorf("command rejected: %s", resp.Decision.Reason)
	}
	return nil
}
