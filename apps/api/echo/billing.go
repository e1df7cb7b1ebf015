package echoapi

import (
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

const dateParamLayout = "2006-01-02"

type billingApi struct {
	svc        *billing.Service
	conf       *core.Config
	validate   *validator.Validate
	translator ut.Translator
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := billingApi{
		svc:        deps.BillingSvc,
		conf:       deps.Conf,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	bg := g.Group("/billing", jwt)

	bg.GET("/expected-payments", api.expectedPayments)
	bg.POST("/expected-payments/remind", api.sendReminders)
	bg.POST("/convert", api.convert)

	bg.GET("/currencies", api.queryCurrencies)
	bg.POST("/currencies", api.createCurrency)
	bg.POST("/currencies/:id/default", api.makeDefaultCurrency)

	bg.GET("/subscriptions", api.querySubscriptions)
	bg.POST("/subscriptions", api.createSubscription)
	bg.GET("/subscriptions/:id", api.retrieveSubscription)
	bg.PUT("/subscriptions/:id/status", api.updateSubscriptionStatus)

	bg.POST("/sessions", api.createSession)
}

// Handlers

func (api *billingApi) expectedPayments(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rng, err := api.bindDateRange(ctx)
	if err != nil {
		return err
	}

	payments, err := api.svc.ExpectedPayments(ctx.Request().Context(), claims.SchoolID(), rng)
	if err != nil {
		return errors.Wrap(err, "projecting expected payments")
	}
	if payments == nil {
		payments = []billing.ExpectedPayment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *billingApi) bindDateRange(ctx echo.Context) (billing.DateRange, error) {
	preset, err := billing.ParseRangePreset(ctx.QueryParam("range"))
	if err != nil {
		return billing.DateRange{}, core.NewValidationError(nil, core.FieldError{Field: "range", Error: err.Error()})
	}

	rng := billing.DateRange{Preset: preset}
	if preset != billing.RangeCustom {
		return rng, nil
	}

	loc := api.conf.Location()
	if raw := ctx.QueryParam("from"); raw != "" {
		if rng.From, err = time.ParseInLocation(dateParamLayout, raw, loc); err != nil {
			return billing.DateRange{}, core.NewValidationError(nil, core.FieldError{Field: "from", Error: "expected YYYY-MM-DD"})
		}
	}
	if raw := ctx.QueryParam("to"); raw != "" {
		if rng.To, err = time.ParseInLocation(dateParamLayout, raw, loc); err != nil {
			return billing.DateRange{}, core.NewValidationError(nil, core.FieldError{Field: "to", Error: "expected YYYY-MM-DD"})
		}
	}
	return rng, nil
}

func (api *billingApi) sendReminders(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.SendPaymentReminders(ctx.Request().Context(), claims.SchoolID()); err != nil {
		return errors.Wrap(err, "sending payment reminders")
	}
	return ctx.NoContent(http.StatusAccepted)
}

func (api *billingApi) convert(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data ConvertRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConvertRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var liveRate []float64
	if data.LiveRate != nil {
		liveRate = append(liveRate, *data.LiveRate)
	}

	result, err := api.svc.ConvertAmount(ctx.Request().Context(), claims.SchoolID(), data.Amount, data.From, data.To, liveRate...)
	if err != nil {
		switch errors.Cause(err) {
		case billing.ErrCurrencyNotFound, billing.ErrNoDefaultCurrency, billing.ErrBadExchangeRate:
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "converting amount")
	}

	return ctx.JSON(http.StatusOK, ConvertResponse{
		Result:  result,
		Rounded: billing.RoundAmount(result),
		From:    data.From,
		To:      data.To,
	})
}

func (api *billingApi) queryCurrencies(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	currencies, err := api.svc.Currencies(ctx.Request().Context(), claims.SchoolID())
	if err != nil {
		return errors.Wrap(err, "querying currencies")
	}
	if currencies == nil {
		currencies = []billing.Currency{}
	}
	return ctx.JSON(http.StatusOK, currencies)
}

func (api *billingApi) createCurrency(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data billing.NewCurrency
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCurrency")
	}
	data.SchoolID = claims.SchoolID()
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	curr, err := api.svc.CreateCurrency(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating currency")
	}
	return ctx.JSON(http.StatusCreated, curr)
}

func (api *billingApi) makeDefaultCurrency(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	err = api.svc.MakeDefaultCurrency(ctx.Request().Context(), claims.SchoolID(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == billing.ErrCurrencyNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "setting default currency")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) querySubscriptions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	statuses := ctx.QueryParams()["status"]
	subs, err := api.svc.Subscriptions(ctx.Request().Context(), claims.SchoolID(), statuses...)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []billing.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *billingApi) createSubscription(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data billing.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	data.SchoolID = claims.SchoolID()
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.CreateSubscription(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subscription")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *billingApi) retrieveSubscription(ctx echo.Context) error {
	sub, err := api.getScopedSubscription(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *billingApi) updateSubscriptionStatus(ctx echo.Context) error {
	sub, err := api.getScopedSubscription(ctx)
	if err != nil {
		return err
	}

	var data SubscriptionStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubscriptionStatusRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err = api.svc.UpdateSubscriptionStatus(ctx.Request().Context(), sub.ID, data.Status)
	if err != nil {
		return errors.Wrap(err, "updating subscription status")
	}
	return ctx.JSON(http.StatusOK, sub)
}

// getScopedSubscription fetches the subscription and hides it behind a 404
// when it belongs to another school.
func (api *billingApi) getScopedSubscription(ctx echo.Context) (billing.Subscription, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return billing.Subscription{}, errors.Wrap(err, "getting context claims")
	}

	sub, err := api.svc.GetSubscription(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == billing.ErrSubscriptionNotFound {
			return billing.Subscription{}, errHttpNotFound
		}
		return billing.Subscription{}, errors.Wrap(err, "getting subscription")
	}
	if sub.SchoolID != claims.SchoolID() {
		return billing.Subscription{}, errHttpNotFound
	}
	return sub, nil
}

func (api *billingApi) createSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data billing.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	data.SchoolID = claims.SchoolID()
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// sessions can only be attached to the school's own subscriptions
	if _, err := api.svc.GetSubscription(ctx.Request().Context(), data.SubscriptionID); err != nil {
		if errors.Cause(err) == billing.ErrSubscriptionNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "subscription_id", Error: "subscription not found"})
		}
		return errors.Wrap(err, "getting subscription")
	}

	sess, err := api.svc.CreateSession(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

type (
	ConvertRequest struct {
		Amount   float64  `json:"amount" validate:"gte=0"`
		From     string   `json:"from" validate:"required,currencycode"`
		To       string   `json:"to" validate:"required,currencycode"`
		LiveRate *float64 `json:"live_rate" validate:"omitempty,gt=0"`
	}

	ConvertResponse struct {
		Result  float64 `json:"result"`
		Rounded float64 `json:"rounded"`
		From    string  `json:"from"`
		To      string  `json:"to"`
	}

	SubscriptionStatusRequest struct {
		Status string `json:"status" validate:"required,subscriptionstatus"`
	}
)

func (cr *ConvertRequest) Validate(validate *validator.Validate) error {
	cr.From = core.CleanString(cr.From)
	cr.To = core.CleanString(cr.To)
	return validate.Struct(cr)
}

func (sr *SubscriptionStatusRequest) Validate(validate *validator.Validate) error {
	sr.Status = core.CleanString(sr.Status, true /* lower */)
	return validate.Struct(sr)
}
