package router

import (
	"github.com/feeledger/backend/internal/interfaces/http/handler"
	"github.com/feeledger/backend/internal/interfaces/http/middleware"
)

// Handlers are the API's endpoint handlers
type Handlers struct {
	Invoices *handler.InvoiceHandler
	Payments *handler.PaymentHandler
	Students *handler.StudentHandler
	Periods  *handler.PeriodHandler
	Catalog  *handler.CatalogHandler
}

// APIGroups builds the fee ledger's route groups. The online payment
// webhook requires webhookSecret in the X-Webhook-Secret header when set.
func APIGroups(h Handlers, webhookSecret string) []*DomainGroup {
	invoices := NewDomainGroup("invoices", "/invoices").
		POST("/generate", h.Invoices.Generate).
		GET("/:id", h.Invoices.Get).
		POST("/:id/void", h.Invoices.Void)

	payments := NewDomainGroup("payments", "/payments").
		POST("/collect", h.Payments.Collect).
		GET("/:id", h.Payments.Get).
		POST("/:id/reverse", h.Payments.Reverse)
	payments.Group("webhooks", "/webhooks").
		Use(middleware.WebhookAuth(webhookSecret)).
		POST("/online", h.Payments.OnlineWebhook)

	students := NewDomainGroup("students", "/students/:id").
		GET("/invoices", h.Invoices.ListByStudent).
		GET("/payments", h.Payments.ListByStudent).
		GET("/balance", h.Students.Balance).
		GET("/statement", h.Students.Statement).
		GET("/carry-forwards", h.Students.CarryForwards).
		GET("/fee-items", h.Students.ApplicableItems).
		GET("/profile", h.Students.GetProfile).
		PUT("/profile", h.Students.PutProfile)

	periods := NewDomainGroup("periods", "/periods").
		GET("", h.Periods.List).
		GET("/:period", h.Periods.Get).
		GET("/:period/report", h.Periods.Report).
		POST("/:period/close", h.Periods.Close).
		POST("/:period/reopen", h.Periods.Reopen)

	catalog := NewDomainGroup("catalog", "/catalog")
	catalog.Group("fee-items", "/fee-items").
		GET("", h.Catalog.ListFeeItems).
		POST("", h.Catalog.CreateFeeItem).
		GET("/:id", h.Catalog.GetFeeItem).
		GET("/:id/revisions", h.Catalog.FeeItemRevisions).
		PUT("/:id", h.Catalog.ReviseFeeItem).
		DELETE("/:id", h.Catalog.RetireFeeItem)
	catalog.Group("discounts", "/discounts").
		GET("", h.Catalog.ListDiscounts).
		POST("", h.Catalog.CreateDiscount).
		GET("/:id", h.Catalog.GetDiscount).
		PUT("/:id", h.Catalog.UpdateDiscount).
		DELETE("/:id", h.Catalog.DeactivateDiscount)
	catalog.Group("fine-rules", "/fine-rules").
		GET("", h.Catalog.ListFineRules).
		POST("", h.Catalog.CreateFineRule).
		DELETE("/:id", h.Catalog.DeactivateFineRule)

	return []*DomainGroup{invoices, payments, students, periods, catalog}
}

// RegisterAPI registers every fee ledger route group on r
func RegisterAPI(r *Router, h Handlers, webhookSecret string) []Route {
	var routes []Route
	for _, g := range APIGroups(h, webhookSecret) {
		r.Register(g)
		routes = append(routes, g.Routes(r.BasePath())...)
	}
	return routes
}
