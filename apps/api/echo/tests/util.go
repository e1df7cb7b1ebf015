package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/malipo/apps/api/echo"
	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/student"
	emailsvc "github.com/trezcool/malipo/services/email"
	dummydb "github.com/trezcool/malipo/storage/database/dummy"
	testutil "github.com/trezcool/malipo/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	app         Server
	conf        *core.Config
	billingRepo billing.Repository
	studentRepo student.Repository
	now         time.Time
}

func setup(t *testing.T) fixture {
	t.Helper()

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	billingRepo := dummydb.NewBillingRepository(db)
	studentRepo := dummydb.NewStudentRepository(db)

	// set up services
	conf := testutil.NewConfig()
	now := time.Date(2021, time.March, 10, 9, 0, 0, 0, conf.Location()) // a Wednesday

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	studentSvc := student.NewService(studentRepo)
	billingSvc := billing.NewServiceMock(billingRepo, studentSvc, mailSvc, testutil.NewNopLogger(), conf,
		func() time.Time { return now })

	// set up server
	translator := testutil.NewTranslator()
	app := NewServer(
		ServerDeps{
			Conf:       conf,
			Logger:     testutil.NewNopLogger(),
			BillingSvc: billingSvc,
			StudentSvc: studentSvc,
			Validate:   testutil.NewValidator(translator),
			Translator: translator,
		},
	)
	return fixture{app: app, conf: conf, billingRepo: billingRepo, studentRepo: studentRepo, now: now}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, schoolID string) string {
	claims := NewSchoolClaims(conf, schoolID, "Test School")
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
