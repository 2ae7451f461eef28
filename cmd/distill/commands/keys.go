package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/pkg/keypool"
	"github.com/jmylchreest/distill/pkg/quota"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API credentials in the credential store",
}

var keysAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a credential",
	Long: `Add a credential to the credential store.

The secret is taken from --secret, from the variable named by
--secret-env, or from the first line of stdin.

Examples:
  distill keys add primary --secret "$GEMINI_API_KEY"
  distill keys add billing --secret-env GEMINI_PAID_KEY --tier paid --priority 1
  echo "$KEY" | distill keys add spare`,
	Args: cobra.ExactArgs(1),
	RunE: runKeysAdd,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysTierCmd = &cobra.Command{
	Use:   "tier NAME free|paid",
	Short: "Change the tier of a credential",
	Args:  cobra.ExactArgs(2),
	RunE:  runKeysTier,
}

var keysDeleteCmd = &cobra.Command{
	Use:     "delete NAME",
	Aliases: []string{"rm"},
	Short:   "Delete a credential",
	Args:    cobra.ExactArgs(1),
	RunE:    runKeysDelete,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysAddCmd, keysListCmd, keysTierCmd, keysDeleteCmd)

	flags := keysAddCmd.Flags()
	flags.String("secret", "", "API key")
	flags.String("secret-env", "", "environment variable holding the API key")
	flags.String("tier", string(quota.TierFree), "credential tier: free or paid")
	flags.Int("priority", 10, "rotation priority, lower first")
}

func readSecret(cmd *cobra.Command) (string, error) {
	if secret, _ := cmd.Flags().GetString("secret"); secret != "" {
		return secret, nil
	}
	if name, _ := cmd.Flags().GetString("secret-env"); name != "" {
		secret := os.Getenv(name)
		if secret == "" {
			return "", fmt.Errorf("environment variable %s is empty", name)
		}
		return secret, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if secret := strings.TrimSpace(line); secret != "" {
		return secret, nil
	}
	if err != nil {
		return "", fmt.Errorf("no secret given: %w", err)
	}
	return "", fmt.Errorf("no secret given")
}

func runKeysAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tierName, _ := cmd.Flags().GetString("tier")
	tier, err := quota.ParseTier(tierName)
	if err != nil {
		return err
	}
	priority, _ := cmd.Flags().GetInt("priority")

	secret, err := readSecret(cmd)
	if err != nil {
		return err
	}

	src, closeDB, err := openKeys(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	cred := keypool.Credential{Name: args[0], Secret: secret, Tier: tier, Priority: priority}
	if err := src.Add(ctx, cred); err != nil {
		return err
	}
	logger.Info("credential added", "name", cred.Name, "tier", cred.Tier, "key", cred.Masked())
	return nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTIER\tPRIORITY\tKEY")
	for i := range creds {
		c := &creds[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Name, c.Tier, c.Priority, c.Masked())
	}
	return tw.Flush()
}

func runKeysTier(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tier, err := quota.ParseTier(args[1])
	if err != nil {
		return err
	}

	src, closeDB, err := openKeys(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := src.SetTier(ctx, args[0], tier); err != nil {
		return err
	}
	logger.Info("credential tier changed", "name", args[0], "tier", tier)
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, closeDB, err := openKeys(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := src.Delete(ctx, args[0]); err != nil {
		return err
	}
	logger.Info("credential deleted", "name", args[0])
	return nil
}
