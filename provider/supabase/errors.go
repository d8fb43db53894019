package supabase

import (
	"encoding/json"
	"io"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wallyhq/go-account"
)

// apiErrorBody covers the provider's error shapes; messages arrive under
// different keys depending on the endpoint.
type apiErrorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Err              string `json:"error"`
}

func (b apiErrorBody) text() string {
	for _, candidate := range []string{b.Msg, b.Message, b.ErrorDescription, b.Err} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// apiError normalizes a non-2xx response into the account error taxonomy,
// keeping the provider's message verbatim.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	body := apiErrorBody{}
	_ = json.Unmarshal(raw, &body)

	message := body.text()
	if message == "" {
		message = resp.Status
	}

	return account.NewProviderError(message, resp.StatusCode)
}

// normalizeGrantError maps rejected password grants to invalid credentials.
// GoTrue answers 400 invalid_grant; other stacks use 401.
func normalizeGrantError(err error) error {
	if err == nil || account.IsNetworkError(err) {
		return err
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return err
	}

	status, _ := richErr.Metadata["status"].(int)
	if status == 400 || status == 401 {
		return account.ErrInvalidCredentials.WithMetadata(map[string]any{
			"provider_message": richErr.Message,
		})
	}

	return err
}
