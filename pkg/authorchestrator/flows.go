package authorchestrator

import "github.com/aionixone/openact-sub001/pkg/flowengine"

// standardOAuthFlowName is the built-in flow used when callers don't name
// one of their own via flow_name.
const standardOAuthFlowName = "oauth2/authorization_code"

// buildStandardOAuthFlow returns the canonical authorization-code + PKCE
// flow graph: redirect to the provider, suspend for the browser callback,
// exchange the code for tokens.
func buildStandardOAuthFlow() *flowengine.Flow {
	return &flowengine.Flow{
		Name:  standardOAuthFlowName,
		Start: "await_callback",
		States: map[string]*flowengine.State{
			"await_callback": {
				Name:     "await_callback",
				Kind:     flowengine.StateTask,
				Resource: "oauth2.await_callback",
				Next:     "exchange_code",
			},
			"exchange_code": {
				Name:     "exchange_code",
				Kind:     flowengine.StateTask,
				Resource: "oauth2.exchange_code",
				End:      true,
			},
		},
	}
}

// clientCredentialsFlowName is used by obtain-via-client-credentials.
const clientCredentialsFlowName = "oauth2/client_credentials"

func buildClientCredentialsFlow() *flowengine.Flow {
	return &flowengine.Flow{
		Name:  clientCredentialsFlowName,
		Start: "obtain",
		States: map[string]*flowengine.State{
			"obtain": {Name: "obtain", Kind: flowengine.StateTask, Resource: "oauth2.client_credentials", End: true},
		},
	}
}

// refreshFlowName is used by refresh_connection.
const refreshFlowName = "oauth2/refresh"

func buildRefreshFlow() *flowengine.Flow {
	return &flowengine.Flow{
		Name:  refreshFlowName,
		Start: "refresh",
		States: map[string]*flowengine.State{
			"refresh": {Name: "refresh", Kind: flowengine.StateTask, Resource: "oauth2.refresh_token", End: true},
		},
	}
}
