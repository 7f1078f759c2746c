package pool

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/fundme/fundme/internal/middleware"
)

func setupHandlerApp(t *testing.T) *fiber.App {
	t.Helper()
	svc, _, _ := newTestService(t)
	h := NewHandler(svc)

	app := fiber.New()
	// stand-in for the bearer token middleware
	app.Use(func(c *fiber.Ctx) error {
		if caller := c.Get("X-Test-Caller"); caller != "" {
			c.Locals(middleware.CallerLocal, caller)
		}
		return c.Next()
	})
	app.Get("/pool", h.Summary)
	app.Get("/pool/price", h.Price)
	app.Get("/pool/funders/:index", h.Funder)
	app.Get("/pool/contributions/:address", h.Contribution)
	app.Post("/pool/fund", h.Fund)
	app.Post("/pool/withdraw", h.Withdraw)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, caller, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if caller != "" {
		req.Header.Set("X-Test-Caller", caller)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	decoded := map[string]any{}
	if resp.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSON {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("invalid json %s: %v", payload, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestHandlerFundAndWithdraw(t *testing.T) {
	app := setupHandlerApp(t)

	status, body := doRequest(t, app, fiber.MethodPost, "/pool/fund", funderA.Hex(), `{"amount_eth":"0.03"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}
	if body["value_usd"] != "60" || body["funder"] != funderA.Hex() {
		t.Fatalf("unexpected contribution body %v", body)
	}

	status, body = doRequest(t, app, fiber.MethodGet, "/pool/funders/0", "", "")
	if status != fiber.StatusOK || body["funder"] != funderA.Hex() {
		t.Fatalf("unexpected funder lookup %d %v", status, body)
	}

	status, _ = doRequest(t, app, fiber.MethodPost, "/pool/withdraw", outsiderC.Hex(), "")
	if status != fiber.StatusForbidden {
		t.Fatalf("expected %d for non-owner, got %d", fiber.StatusForbidden, status)
	}

	status, body = doRequest(t, app, fiber.MethodPost, "/pool/withdraw", deployer.Hex(), "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	if body["amount_eth"] != "0.03" {
		t.Fatalf("unexpected withdrawal body %v", body)
	}

	status, _ = doRequest(t, app, fiber.MethodGet, "/pool/funders/0", "", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected %d after reset, got %d", fiber.StatusNotFound, status)
	}
}

func TestHandlerStatusMapping(t *testing.T) {
	app := setupHandlerApp(t)

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   string
		want   int
	}{
		{"below minimum", fiber.MethodPost, "/pool/fund", funderA.Hex(), `{"amount_eth":"0.01"}`, fiber.StatusUnprocessableEntity},
		{"missing caller", fiber.MethodPost, "/pool/fund", "", `{"amount_eth":"1"}`, fiber.StatusUnauthorized},
		{"bad amount", fiber.MethodPost, "/pool/fund", funderA.Hex(), `{"amount_eth":"lots"}`, fiber.StatusBadRequest},
		{"bad json", fiber.MethodPost, "/pool/fund", funderA.Hex(), `{`, fiber.StatusBadRequest},
		{"bad index", fiber.MethodGet, "/pool/funders/abc", "", "", fiber.StatusBadRequest},
		{"bad address", fiber.MethodGet, "/pool/contributions/0xnope", "", "", fiber.StatusBadRequest},
		{"withdraw anonymous", fiber.MethodPost, "/pool/withdraw", "", "", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := doRequest(t, app, tc.method, tc.path, tc.caller, tc.body)
			if status != tc.want {
				t.Fatalf("expected %d got %d", tc.want, status)
			}
		})
	}
}

func TestHandlerSummaryAndPrice(t *testing.T) {
	app := setupHandlerApp(t)

	status, body := doRequest(t, app, fiber.MethodGet, "/pool", "", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	if body["owner"] != deployer.Hex() || body["minimum_usd"] != "50" || body["balance_wei"] != "0" {
		t.Fatalf("unexpected summary %v", body)
	}

	status, body = doRequest(t, app, fiber.MethodGet, "/pool/price", "", "")
	if status != fiber.StatusOK || body["usd_per_eth"] != "2000" {
		t.Fatalf("unexpected price %d %v", status, body)
	}

	status, body = doRequest(t, app, fiber.MethodGet, "/pool/contributions/"+funderB.Hex(), "", "")
	if status != fiber.StatusOK || body["amount_wei"] != "0" {
		t.Fatalf("unexpected contribution %d %v", status, body)
	}
}

func TestToFiberErrorMapsOracleFailures(t *testing.T) {
	cases := map[error]int{
		ErrOracleUnavailable:     fiber.StatusServiceUnavailable,
		ErrInvalidRate:           fiber.StatusBadGateway,
		ErrCustodyTransferFailed: fiber.StatusBadGateway,
	}
	for err, want := range cases {
		var fe *fiber.Error
		got := toFiberError(err)
		if !errors.As(got, &fe) || fe.Code != want {
			t.Fatalf("expected %d for %v, got %v", want, err, got)
		}
	}
}

type fixedVerifier struct{ caller common.Address }

func (v fixedVerifier) Verify(string) (common.Address, error) { return v.caller, nil }

func TestHandlerFundReadsCallerFromAuthMiddleware(t *testing.T) {
	svc, _, _ := newTestService(t)
	h := NewHandler(svc)
	app := fiber.New()
	app.Post("/pool/fund", middleware.CallerAuth(fixedVerifier{caller: funderB}), h.Fund)

	req := httptest.NewRequest(fiber.MethodPost, "/pool/fund", strings.NewReader(`{"amount_eth":"0.03"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer token")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, resp.StatusCode)
	}
	if got := svc.Ledger().AmountFunded(funderB); got.Cmp(ether(t, "0.03")) != 0 {
		t.Fatalf("expected 0.03 ether credited to the authenticated caller, got %s", got)
	}
}
