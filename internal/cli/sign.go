package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/verify"
)

var (
	signKind    string
	signParams  []string
	signKeyID   string
	signNonce   uint64
	signSource  string
	signSession string
)

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVar(&signKind, "kind", "", "Command kind (ARM, GOTO, SET_MODE, ...)")
	signCmd.Flags().StringArrayVarP(&signParams, "param", "p", nil, "Command parameter name=value (repeatable)")
	signCmd.Flags().StringVar(&signKeyID, "key-id", "", "Key id to sign with (must be in the config keyring)")
	signCmd.Flags().Uint64Var(&signNonce, "nonce", 0, "Command nonce")
	signCmd.Flags().StringVar(&signSource, "source", string(model.SourceKnownGroundStation), "Source tag")
	signCmd.Flags().StringVar(&signSession, "session", "", "Session id (default session_id from config)")
	signCmd.MarkFlagRequired("kind")
	signCmd.MarkFlagRequired("key-id")
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a command as a ground station would",
	Long:  "Builds a framed command, computes its authentication tag and prints it as JSON,\nready for `aegis submit` or a spool directory.",
	RunE:  runSign,
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	kr, err := cfg.Keyring()
	if err != nil {
		return err
	}
	suite, err := verify.ParseSuite(cfg.Suite)
	if err != nil {
		return err
	}
	params, err := parseParams(signParams)
	if err != nil {
		return err
	}
	session := signSession
	if session == "" {
		session = cfg.SessionID
	}

	raw, err := verify.NewSigner(suite, kr, session).SignRaw(model.RawCommand{
		Kind:   signKind,
		Params: params,
		Source: signSource,
		KeyID:  signKeyID,
		Nonce:  signNonce,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// parseParams turns name=value pairs into params. Values that parse as
// numbers become float64.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", p)
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[name] = f
		} else {
			out[name] = value
		}
	}
	return out, nil
}
