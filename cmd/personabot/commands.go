package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/personabot/internal/config"
	"github.com/kalambet/personabot/internal/profile"
	"github.com/kalambet/personabot/internal/storage"
)

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect or encrypt the persona profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the loaded profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		doc, err := profile.Load(profileSource(cfg))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

var profileLexiconCmd = &cobra.Command{
	Use:   "lexicon",
	Short: "Show capabilities and the skill/preference lexicon the judge uses",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		doc, err := profile.Load(profileSource(cfg))
		if err != nil {
			return err
		}

		lex := profile.BuildLexicon(doc)
		printTermList("Capabilities", doc.Capabilities())
		printTermList("Skills", lex.Skills)
		printTermList("Preferences", lex.Preferences)
		return nil
	},
}

func printTermList(label string, terms []string) {
	fmt.Printf("%s (%d)\n", colorize(colorBold, label), len(terms))
	if len(terms) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, t := range terms {
		fmt.Printf("  - %s\n", t)
	}
}

var profileEncryptCmd = &cobra.Command{
	Use:   "encrypt <file>",
	Short: "Encrypt a plaintext profile for storage at rest",
	Long: `Encrypt a plaintext YAML or JSON profile with a passphrase.

The passphrase is taken from PERSONABOT_PROFILE_KEY or the keyring when set,
otherwise it is prompted for. Use --base64 to print a value suitable for
PERSONABOT_PROFILE_BASE64.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		asBase64, _ := cmd.Flags().GetBool("base64")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		passphrase := cfg.Profile.Passphrase
		if passphrase == "" {
			if passphrase, err = promptNewPassphrase(); err != nil {
				return err
			}
		}

		sealed, err := encryptProfileFile(args[0], passphrase)
		if err != nil {
			return err
		}

		if asBase64 {
			fmt.Println(base64.StdEncoding.EncodeToString(sealed))
			return nil
		}
		if out == "" {
			out = args[0] + ".enc"
		}
		if err := os.WriteFile(out, sealed, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		printSuccess("Encrypted profile written to %s", out)
		return nil
	},
}

// encryptProfileFile validates the plaintext profile at path and returns
// its encrypted envelope.
func encryptProfileFile(path, passphrase string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if profile.IsEnvelope(data) {
		return nil, fmt.Errorf("%s is already encrypted", path)
	}
	if _, err := profile.Parse(data); err != nil {
		return nil, fmt.Errorf("%s is not a valid profile: %w", path, err)
	}
	return profile.Encrypt(data, passphrase)
}

func promptNewPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no passphrase configured and stdin is not a terminal; set PERSONABOT_PROFILE_KEY")
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	if len(first) == 0 {
		return "", errors.New("empty passphrase")
	}
	return string(first), nil
}

func init() {
	profileEncryptCmd.Flags().StringP("output", "o", "", "output file (default <file>.enc)")
	profileEncryptCmd.Flags().Bool("base64", false, "print the envelope base64-encoded instead of writing a file")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileLexiconCmd)
	profileCmd.AddCommand(profileEncryptCmd)
}

// --- decisions ---

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect the decision log of a running server",
}

func decisionsListPath(limit, offset int, decision, sessionID string) string {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	if decision != "" {
		q.Set("decision", strings.ToUpper(decision))
	}
	if sessionID != "" {
		q.Set("session", sessionID)
	}
	return "/decisions?" + q.Encode()
}

func formatDecisionLine(r storage.DecisionRecord) string {
	msg := strings.ReplaceAll(r.UserMessage, "\n", " ")
	if utf8.RuneCountInString(msg) > 60 {
		msg = string([]rune(msg)[:60]) + "..."
	}
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s  %s  %-8s %s  %s",
		colorize(colorCyan, id),
		r.CreatedAt.Format("2006-01-02 15:04:05"),
		r.Stage,
		colorize(decisionColor(r.Decision), fmt.Sprintf("%-18s", r.Decision)),
		msg,
	)
}

var decisionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		decision, _ := cmd.Flags().GetString("decision")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), decisionsListPath(limit, offset, decision, sessionID))
		if err != nil {
			return err
		}

		var records []storage.DecisionRecord
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No decisions found.")
			return nil
		}
		for _, r := range records {
			fmt.Println(formatDecisionLine(r))
		}
		return nil
	},
}

var decisionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/decisions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var record storage.DecisionRecord
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

var decisionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count decisions by code",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/decisions/stats")
		if err != nil {
			return err
		}

		var counts []storage.DecisionCount
		if err := decodeJSON(resp, &counts); err != nil {
			return err
		}

		if len(counts) == 0 {
			fmt.Println("No decisions logged yet.")
			return nil
		}
		for _, c := range counts {
			fmt.Printf("  %s %d\n", colorize(decisionColor(c.Decision), fmt.Sprintf("%-18s", c.Decision)), c.Count)
		}
		return nil
	},
}

var decisionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a decision from the log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/decisions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted decision %s", args[0])
		return nil
	},
}

func init() {
	decisionsListCmd.Flags().Int("limit", 20, "maximum number of decisions to list")
	decisionsListCmd.Flags().Int("offset", 0, "number of decisions to skip")
	decisionsListCmd.Flags().String("decision", "", "only list this decision code (e.g. OUT_OF_SCOPE)")
	decisionsListCmd.Flags().String("session", "", "only list decisions of this session")

	decisionsCmd.AddCommand(decisionsListCmd)
	decisionsCmd.AddCommand(decisionsShowCmd)
	decisionsCmd.AddCommand(decisionsStatsCmd)
	decisionsCmd.AddCommand(decisionsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("  %s\n", colorize(colorCyan, "# "+config.ConfigLocation()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (secrets go to the OS keyring)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if config.IsSecret(key) {
			printSuccess("Stored %s in the OS keyring", key)
			return nil
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
