package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/authorchestrator"
	"github.com/aionixone/openact-sub001/pkg/credstore"
	"github.com/aionixone/openact-sub001/pkg/registry"
)

func initAuthCmds(root *cobra.Command) {
	root.AddCommand(authBeginCmd, authResumeCmd, authRefreshCmd, authGetCmd, authRevokeCmd)
}

var authBeginCmd = &cobra.Command{
	Use:   "auth-begin",
	Short: "Start an OAuth2 authorization-code flow for a stored connection",
	Long: `Reads the (connector, connection) config from the registry, begins an
OAuth2 flow via the Auth Orchestrator, and prints the URL the end user
must visit plus the CSRF state nonce the eventual callback must carry.`,
	RunE: authBeginCmdFunc,
}

var (
	authConnector   string
	authConnection  string
	authUserID      string
	authState       string
	authCallbackCode string
)

func init() {
	addTenantFlag(authBeginCmd)
	authBeginCmd.Flags().StringVar(&authConnector, "connector", "", "Connector name (required)")
	authBeginCmd.Flags().StringVar(&authConnection, "connection", "", "Connection name (required)")
	authBeginCmd.Flags().StringVar(&authUserID, "user-id", "", "End-user identifier the resulting credential is stored under (required)")
	_ = authBeginCmd.MarkFlagRequired("connector")
	_ = authBeginCmd.MarkFlagRequired("connection")
	_ = authBeginCmd.MarkFlagRequired("user-id")

	addTenantFlag(authResumeCmd)
	authResumeCmd.Flags().StringVar(&authState, "state", "", "CSRF state nonce returned by auth-begin (required)")
	authResumeCmd.Flags().StringVar(&authCallbackCode, "code", "", "Authorization code from the provider's callback (required)")
	_ = authResumeCmd.MarkFlagRequired("state")
	_ = authResumeCmd.MarkFlagRequired("code")

	addTenantFlag(authRefreshCmd)
	authRefreshCmd.Flags().StringVar(&authConnector, "provider", "", "Provider name (required)")
	authRefreshCmd.Flags().StringVar(&authUserID, "user-id", "", "End-user identifier (required)")
	_ = authRefreshCmd.MarkFlagRequired("provider")
	_ = authRefreshCmd.MarkFlagRequired("user-id")

	addTenantFlag(authGetCmd)
	authGetCmd.Flags().StringVar(&authConnector, "provider", "", "Provider name (required)")
	authGetCmd.Flags().StringVar(&authUserID, "user-id", "", "End-user identifier (required)")
	_ = authGetCmd.MarkFlagRequired("provider")
	_ = authGetCmd.MarkFlagRequired("user-id")

	addTenantFlag(authRevokeCmd)
	authRevokeCmd.Flags().StringVar(&authConnector, "provider", "", "Provider name (required)")
	authRevokeCmd.Flags().StringVar(&authUserID, "user-id", "", "End-user identifier (required)")
	_ = authRevokeCmd.MarkFlagRequired("provider")
	_ = authRevokeCmd.MarkFlagRequired("user-id")
}

func authBeginCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	ctx := cmd.Context()
	tenant := resolveTenant(cmd, app)

	conn, ok, err := app.Connections.Latest(ctx, tenant, authConnector, authConnection)
	if err != nil {
		return emitErr(err)
	}
	if !ok {
		return emitErr(apperrors.New(apperrors.KindNotFound, "connection not found").
			WithData(map[string]any{"connector": authConnector, "name": authConnection}))
	}

	oauthCfg, err := oauth2ConfigFromConnection(conn)
	if err != nil {
		return emitErr(err)
	}

	ref := authorchestrator.Ref{Tenant: tenant, Provider: authConnector, UserID: authUserID}
	pending, err := app.Orchestrator.BeginOAuthFromConfig(ctx, ref, oauthCfg)
	if err != nil {
		return emitErr(err)
	}

	return emit(pending, func() {
		if pending.Completed {
			fmt.Printf("connected: %s (client_credentials, no browser step needed)\n", pending.ConnectionTRN)
			return
		}
		fmt.Printf("visit: %s\n", pending.AuthorizeURL)
		fmt.Printf("state: %s\n", pending.State)
	})
}

func authResumeCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()

	conn, err := app.Orchestrator.CompleteOAuthWithCallback(cmd.Context(), authState, authCallbackCode)
	if err != nil {
		return emitErr(err)
	}

	return emit(redactedConnection(conn), func() {
		fmt.Printf("connected: %s (expires %v)\n", conn.TRN, conn.ExpiresAt)
	})
}

func authRefreshCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	ref := authorchestrator.Ref{Tenant: tenant, Provider: authConnector, UserID: authUserID}
	conn, err := app.Orchestrator.RefreshConnection(cmd.Context(), ref)
	if err != nil {
		return emitErr(err)
	}

	return emit(redactedConnection(conn), func() {
		fmt.Printf("refreshed: %s (expires %v)\n", conn.TRN, conn.ExpiresAt)
	})
}

func authGetCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	ref := authorchestrator.Ref{Tenant: tenant, Provider: authConnector, UserID: authUserID}
	conn, ok, err := app.Credentials.Get(cmd.Context(), ref)
	if err != nil {
		return emitErr(err)
	}
	if !ok {
		return emitErr(apperrors.New(apperrors.KindNotFound, "auth connection not found").
			WithData(map[string]any{"provider": authConnector, "user_id": authUserID}))
	}

	return emit(redactedConnection(conn), func() {
		fmt.Printf("trn: %s\nexpires: %v\nkey_version: %d\n", conn.TRN, conn.ExpiresAt, conn.KeyVersion)
	})
}

func authRevokeCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	ref := authorchestrator.Ref{Tenant: tenant, Provider: authConnector, UserID: authUserID}
	removed, err := app.Credentials.Delete(cmd.Context(), ref)
	if err != nil {
		return emitErr(err)
	}

	return emit(map[string]any{"removed": removed}, func() {
		if removed {
			fmt.Println("revoked")
		} else {
			fmt.Println("nothing to revoke")
		}
	})
}

var authResumeCmd = &cobra.Command{
	Use:   "auth-resume",
	Short: "Complete an OAuth2 flow from the provider's callback",
	RunE:  authResumeCmdFunc,
}

var authRefreshCmd = &cobra.Command{
	Use:   "auth-refresh",
	Short: "Force-refresh a stored credential",
	RunE:  authRefreshCmdFunc,
}

var authGetCmd = &cobra.Command{
	Use:   "auth-get",
	Short: "Show a stored credential's metadata (tokens are never printed)",
	RunE:  authGetCmdFunc,
}

var authRevokeCmd = &cobra.Command{
	Use:   "auth-revoke",
	Short: "Delete a stored credential",
	RunE:  authRevokeCmdFunc,
}

// redactedConnection strips access_token/refresh_token/extra before the
// credential ever reaches stdout or a log line.
func redactedConnection(conn credstore.AuthConnection) map[string]any {
	return map[string]any{
		"trn":         conn.TRN,
		"tenant":      conn.Tenant,
		"provider":    conn.Provider,
		"user_id":     conn.UserID,
		"token_type":  conn.TokenType,
		"scope":       conn.Scope,
		"expires_at":  conn.ExpiresAt,
		"key_version": conn.KeyVersion,
		"version":     conn.Version,
	}
}

// oauth2ConfigFromConnection maps a stored connection's config object into
// the OAuth2Config the Auth Orchestrator expects. Connection configs store
// these under an "auth" sub-object (spec.md §6 manifest file format).
func oauth2ConfigFromConnection(conn registry.ConnectionRecord) (authorchestrator.OAuth2Config, error) {
	auth, _ := conn.Config["auth"].(map[string]any)
	if auth == nil {
		return authorchestrator.OAuth2Config{}, apperrors.New(apperrors.KindInvalidArguments,
			"connection config has no auth object").WithData(map[string]any{"connection_trn": conn.TRN})
	}

	cfg := authorchestrator.OAuth2Config{
		Provider:     conn.Connector,
		ClientID:     stringField(auth, "client_id"),
		ClientSecret: stringField(auth, "client_secret"),
		AuthURL:      stringField(auth, "auth_url"),
		TokenURL:     stringField(auth, "token_url"),
		RedirectURL:  stringField(auth, "redirect_url"),
		Scopes:       stringSliceField(auth, "scopes"),
		UsePKCE:      boolField(auth, "use_pkce"),
		GrantType:    stringField(auth, "grant_type"),
	}
	return cfg, nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
