package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/sells-group/outreach-cli/pkg/gmail"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage sending mailbox accounts",
}

var accountEmail string

var accountsLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link a Gmail account via OAuth",
	Long: `Run the OAuth consent flow for a Gmail account and store its tokens.
Prints the consent URL; paste the authorization code back when asked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("campaign"); err != nil {
			return err
		}

		oc := gmail.NewOAuthConfig(gmailOAuthConfig())
		url := oc.AuthCodeURL("state-token",
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		)
		fmt.Printf("Open this URL in a browser and authorize access:\n\n%s\n\nAuthorization code: ", url)

		reader := bufio.NewReader(os.Stdin)
		code, err := reader.ReadString('\n')
		if err != nil {
			return eris.Wrap(err, "read authorization code")
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return eris.New("empty authorization code")
		}

		tok, err := oc.Exchange(ctx, code)
		if err != nil {
			return eris.Wrap(err, "exchange authorization code")
		}
		data, err := gmail.MarshalToken(tok)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		account, err := st.CreateAccount(ctx, accountEmail, data)
		if err != nil {
			return err
		}
		fmt.Printf("account %s linked (%s)\n", account.Email, account.ID)
		return nil
	},
}

var accountsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active sending account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		account, err := st.GetActiveAccount(ctx)
		if err != nil {
			return err
		}
		if account == nil {
			fmt.Println("no active account")
			return nil
		}
		return printJSON(account)
	},
}

func init() {
	accountsLinkCmd.Flags().StringVar(&accountEmail, "email", "", "mailbox address being linked (required)")
	_ = accountsLinkCmd.MarkFlagRequired("email")

	accountsCmd.AddCommand(accountsLinkCmd, accountsShowCmd)
	rootCmd.AddCommand(accountsCmd)
}
