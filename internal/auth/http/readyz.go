package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/revocation"
	"github.com/aussiebroadwan/passwordless/internal/auth/store"
	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/aussiebroadwan/passwordless/pkg/httpx"
	"github.com/aussiebroadwan/passwordless/pkg/jwtx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the identity store, the token signer and the revocation backend.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"one or more checks failed"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	signer jwtx.Signer,
	revocations revocation.Registry,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{
			Database:   "ok",
			Signer:     "ok",
			Revocation: "ok",
		}
		status := "ok"
		code := http.StatusOK

		fail := func(field *string, err error) {
			*field = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if err := st.Ping(r.Context()); err != nil {
			fail(&checks.Database, err)
		}
		if err := signer.Validate(); err != nil {
			fail(&checks.Signer, err)
		}
		if err := revocations.Ping(r.Context()); err != nil {
			fail(&checks.Revocation, err)
		}

		httpx.NoCache(w)
		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
