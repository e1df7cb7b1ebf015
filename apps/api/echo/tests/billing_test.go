package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/malipo/core/billing"
	testutil "github.com/trezcool/malipo/tests"
)

const schoolID = "sch1"

// seedBilling creates a school with two projectable subscriptions:
// Anna pays Mondays (last session Mar 8 -> due Mar 15),
// Boris was never billed (-> due "today", Mar 10).
func seedBilling(t *testing.T, fix fixture) (anna, boris billing.Subscription) {
	t.Helper()
	loc := fix.conf.Location()

	annaSt := testutil.CreateStudent(t, fix.studentRepo, schoolID, "Anna K", "anna@test.cd")
	borisSt := testutil.CreateStudent(t, fix.studentRepo, schoolID, "Boris P", "boris@test.cd")

	testutil.CreateCurrency(t, fix.billingRepo, schoolID, "RUB", 1, true)
	testutil.CreateCurrency(t, fix.billingRepo, schoolID, "USD", 0.0135, false)

	anna = testutil.CreateSubscription(t, fix.billingRepo, schoolID, annaSt.ID,
		billing.Schedule{{Day: billing.Weekday(time.Monday)}}, 5000, "RUB", billing.SubscriptionActive)
	testutil.CreateSession(t, fix.billingRepo, anna, null.TimeFrom(testutil.Date(2021, time.March, 8, loc)), billing.SessionCompleted)

	boris = testutil.CreateSubscription(t, fix.billingRepo, schoolID, borisSt.ID,
		billing.Schedule{{Day: billing.Weekday(time.Thursday)}}, 3000, "USD", billing.SubscriptionActive)

	return anna, boris
}

func Test_billingApi_expectedPayments(t *testing.T) {
	fix := setup(t)
	anna, boris := seedBilling(t, fix)
	loc := fix.conf.Location()
	token := getToken(t, fix.conf, schoolID)

	annaPayment := billing.ExpectedPayment{
		SubscriptionID:    anna.ID,
		StudentID:         anna.StudentID,
		StudentName:       "Anna K",
		NextPaymentDate:   testutil.Date(2021, time.March, 15, loc),
		NextPaymentAmount: 5000,
		CurrencyCode:      "RUB",
		CurrencySymbol:    "₽",
		LastSessionDate:   null.TimeFrom(testutil.Date(2021, time.March, 8, loc)),
	}
	borisPayment := billing.ExpectedPayment{
		SubscriptionID:    boris.ID,
		StudentID:         boris.StudentID,
		StudentName:       "Boris P",
		NextPaymentDate:   testutil.Date(2021, time.March, 10, loc),
		NextPaymentAmount: 3000,
		CurrencyCode:      "USD",
		CurrencySymbol:    "$",
	}

	tests := []httpTest{
		{
			name: "auth required", path: "/v1/billing/expected-payments",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "all payments, soonest first", path: "/v1/billing/expected-payments", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, []billing.ExpectedPayment{borisPayment, annaPayment}),
		},
		{
			name: "range=today", path: "/v1/billing/expected-payments?range=today", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, []billing.ExpectedPayment{borisPayment}),
		},
		{
			name: "custom range", path: "/v1/billing/expected-payments?range=custom&from=2021-03-14", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, []billing.ExpectedPayment{annaPayment}),
		},
		{
			name: "another school sees nothing", path: "/v1/billing/expected-payments",
			token:    getToken(t, fix.conf, "other"),
			wantCode: http.StatusOK, wantData: marchallObj(t, []billing.ExpectedPayment{}),
		},
		{
			name: "invalid range", path: "/v1/billing/expected-payments?range=fortnight", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"range": `invalid range preset "fortnight"`}),
		},
		{
			name: "invalid custom date", path: "/v1/billing/expected-payments?range=custom&from=tomorrow", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"from": "expected YYYY-MM-DD"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			fix.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_billingApi_convert(t *testing.T) {
	fix := setup(t)
	seedBilling(t, fix)
	token := getToken(t, fix.conf, schoolID)

	tests := []httpTest{
		{
			name: "from default", body: []byte(`{"amount":1000,"from":"RUB","to":"USD"}`), token: token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"result": 13.5, "rounded": 13.5, "from": "RUB", "to": "USD"}),
		},
		{
			name: "live rate wins", body: []byte(`{"amount":100,"from":"USD","to":"RUB","live_rate":74}`), token: token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"result": 7400, "rounded": 7400, "from": "USD", "to": "RUB"}),
		},
		{
			name: "unknown currency", body: []byte(`{"amount":100,"from":"XTS","to":"RUB"}`), token: token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "XTS: currency not found"}),
		},
		{
			name: "missing fields", body: []byte(`{"amount":100}`), token: token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"from": "this field is required", "to": "this field is required"}),
		},
		{
			name: "auth required", body: []byte(`{"amount":100,"from":"RUB","to":"USD"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/billing/convert", tt.token, tt.body)
			fix.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_billingApi_currencies(t *testing.T) {
	fix := setup(t)
	token := getToken(t, fix.conf, schoolID)
	ctx := context.Background()

	// create accepts legacy camelCase payloads
	req, rec := newAuthRequest(http.MethodPost, "/v1/billing/currencies", token,
		[]byte(`{"code":"rub","isDefault":true}`))
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rub billing.Currency
	if err := json.Unmarshal(rec.Body.Bytes(), &rub); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	assert.Equal(t, "RUB", rub.Code)
	assert.Equal(t, "₽", rub.Symbol)
	assert.True(t, rub.IsDefault)
	assert.Equal(t, float64(1), rub.ExchangeRate)

	req, rec = newAuthRequest(http.MethodPost, "/v1/billing/currencies", token,
		[]byte(`{"code":"USD","exchangeRate":0.0135}`))
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var usd billing.Currency
	if err := json.Unmarshal(rec.Body.Bytes(), &usd); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}

	// swap the default
	req, rec = newAuthRequest(http.MethodPost, "/v1/billing/currencies/"+usd.ID+"/default", token)
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	currencies, err := fix.billingRepo.QueryCurrencies(ctx, schoolID)
	if err != nil {
		t.Fatalf("QueryCurrencies() failed: %v", err)
	}
	assert.Equal(t, 1, billing.CountDefaults(currencies))
	curr, err := billing.DefaultCurrency(currencies)
	if assert.NoError(t, err) {
		assert.Equal(t, "USD", curr.Code)
	}

	// unknown or foreign currency cannot become the default
	req, rec = newAuthRequest(http.MethodPost, "/v1/billing/currencies/ghost/default", token)
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// listing is scoped to the token's school
	req, rec = newAuthRequest(http.MethodGet, "/v1/billing/currencies", getToken(t, fix.conf, "other"))
	fix.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, []billing.Currency{})}, rec)

	// a bad code is rejected with a field error
	req, rec = newAuthRequest(http.MethodPost, "/v1/billing/currencies", token, []byte(`{"code":"DOLLARS","exchangeRate":1}`))
	fix.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"code": "must be a 3-letter currency code"}),
	}, rec)
}

func Test_billingApi_subscriptions(t *testing.T) {
	fix := setup(t)
	loc := fix.conf.Location()
	token := getToken(t, fix.conf, schoolID)

	// create accepts legacy camelCase payloads; school comes from the token
	req, rec := newAuthRequest(http.MethodPost, "/v1/billing/subscriptions", token,
		[]byte(`{"studentId":"st1","totalPrice":4500.5,"currencyCode":"usd","schedule":[{"day":"Monday","time":"15:00"}]}`))
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sub billing.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	assert.Equal(t, schoolID, sub.SchoolID)
	assert.Equal(t, "USD", sub.CurrencyCode)
	assert.Equal(t, billing.SubscriptionActive, sub.Status) // defaulted
	assert.Equal(t, billing.Schedule{{Day: billing.Weekday(time.Monday), Time: "15:00"}}, sub.Schedule)

	// retrieve, then pause it
	req, rec = newAuthRequest(http.MethodGet, "/v1/billing/subscriptions/"+sub.ID, token)
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newAuthRequest(http.MethodPut, "/v1/billing/subscriptions/"+sub.ID+"/status", token,
		[]byte(`{"status":"paused"}`))
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var paused billing.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &paused); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	assert.Equal(t, billing.SubscriptionPaused, paused.Status)

	req, rec = newAuthRequest(http.MethodPut, "/v1/billing/subscriptions/"+sub.ID+"/status", token,
		[]byte(`{"status":"zombie"}`))
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// status query filter
	req, rec = newAuthRequest(http.MethodGet, "/v1/billing/subscriptions?status=active", token)
	fix.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, []billing.Subscription{})}, rec)

	// another school's subscription is invisible
	foreign := testutil.CreateSubscription(t, fix.billingRepo, "other", "st9",
		billing.Schedule{{Day: billing.Weekday(time.Friday)}}, 100, "RUB", billing.SubscriptionActive)
	req, rec = newAuthRequest(http.MethodGet, "/v1/billing/subscriptions/"+foreign.ID, token)
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// record a session against our subscription
	req, rec = newAuthRequest(http.MethodPost, "/v1/billing/sessions", token,
		[]byte(`{"subscriptionId":"`+sub.ID+`","scheduledDate":"2021-03-08","status":"completed"}`))
	fix.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sess billing.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	assert.Equal(t, sub.ID, sess.SubscriptionID)
	if assert.True(t, sess.ScheduledDate.Valid) {
		assert.True(t, testutil.Date(2021, time.March, 8, loc).Equal(sess.ScheduledDate.Time))
	}

	// sessions cannot point at unknown subscriptions
	req, rec = newAuthRequest(http.MethodPost, "/v1/billing/sessions", token,
		[]byte(`{"subscriptionId":"ghost","scheduledDate":"2021-03-08"}`))
	fix.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"subscription_id": "subscription not found"}),
	}, rec)
}
