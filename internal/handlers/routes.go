package handlers

import (
	"net/http"

	"concierge-whatsapp/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
)

// Router builds the HTTP handler. CORS wraps the router so preflight requests never need a route.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	c := alice.New(s.instrument)
	tenant := c.Append(s.requireTenant)
	admin := c.Append(s.requireAdmin)

	r.Handle("/health", c.Then(s.Health())).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.Handle("/webhook/whatsapp", c.Then(s.Webhook())).Methods("POST")

	r.Handle("/api/setup/tenant", c.Then(s.SetupTenant())).Methods("POST")
	r.Handle("/api/setup/seed", c.Then(s.SetupSeed())).Methods("POST")

	// Tenant dashboard
	r.Handle("/api/auth/login", c.Then(s.Login())).Methods("POST")
	r.Handle("/api/auth/logout", c.Then(s.Logout())).Methods("POST")
	r.Handle("/api/auth/me", tenant.Then(s.Me())).Methods("GET")
	r.Handle("/api/auth/password-reset", c.Then(s.PasswordReset())).Methods("POST")

	r.Handle("/api/conversations", tenant.Then(s.ListConversations())).Methods("GET")
	r.Handle("/api/conversations/{id:[0-9]+}/messages", tenant.Then(s.ListMessages(tenantScope))).Methods("GET")
	r.Handle("/api/conversations/{id:[0-9]+}/send", tenant.Then(s.SendMessage(tenantScope))).Methods("POST")
	r.Handle("/api/conversations/{id:[0-9]+}/auto-reply", tenant.Then(s.SetAutoReply(tenantScope))).Methods("PATCH")
	r.Handle("/api/conversations/{id:[0-9]+}/tags", tenant.Then(s.ListTags())).Methods("GET")
	r.Handle("/api/conversations/{id:[0-9]+}/tags", tenant.Then(s.AddTag())).Methods("POST")
	r.Handle("/api/conversations/{id:[0-9]+}/tags/{tag}", tenant.Then(s.RemoveTag())).Methods("DELETE")
	r.Handle("/api/conversations/{id:[0-9]+}/notes", tenant.Then(s.ListNotes())).Methods("GET")
	r.Handle("/api/conversations/{id:[0-9]+}/notes", tenant.Then(s.AddNote())).Methods("POST")
	r.Handle("/api/conversations/{id:[0-9]+}/notes/{noteId:[0-9]+}", tenant.Then(s.DeleteNote())).Methods("DELETE")
	r.Handle("/api/search", tenant.Then(s.Search())).Methods("GET")
	r.Handle("/api/statistics", tenant.Then(s.Statistics())).Methods("GET")

	r.Handle("/api/faqs", tenant.Then(s.ListFAQs())).Methods("GET")
	r.Handle("/api/faqs", tenant.Then(s.CreateFAQ(tenantScope))).Methods("POST")
	r.Handle("/api/faqs/{id:[0-9]+}", tenant.Then(s.UpdateFAQ(tenantScope))).Methods("PUT")
	r.Handle("/api/faqs/{id:[0-9]+}", tenant.Then(s.DeleteFAQ(tenantScope))).Methods("DELETE")

	r.Handle("/api/templates", tenant.Then(s.ListTemplates())).Methods("GET")
	r.Handle("/api/templates", tenant.Then(s.CreateTemplate())).Methods("POST")
	r.Handle("/api/templates/{id:[0-9]+}", tenant.Then(s.UpdateTemplate())).Methods("PUT")
	r.Handle("/api/templates/{id:[0-9]+}", tenant.Then(s.DeleteTemplate())).Methods("DELETE")

	r.Handle("/api/feature-requests", tenant.Then(s.CreateFeatureRequest(tenantScope))).Methods("POST")

	// Admin dashboard
	r.Handle("/api/admin/auth/login", c.Then(s.AdminLogin())).Methods("POST")
	r.Handle("/api/admin/auth/logout", c.Then(s.Logout())).Methods("POST")
	r.Handle("/api/admin/auth/check", admin.Then(s.AdminCheck())).Methods("GET")

	r.Handle("/api/admin/tenants", admin.Then(s.ListTenants())).Methods("GET")
	r.Handle("/api/admin/tenants", admin.Then(s.CreateTenant())).Methods("POST")
	r.Handle("/api/admin/tenants/{id:[0-9]+}", admin.Then(s.GetTenant())).Methods("GET")
	r.Handle("/api/admin/tenants/{id:[0-9]+}", admin.Then(s.UpdateTenant())).Methods("PUT")
	r.Handle("/api/admin/tenants/{id:[0-9]+}", admin.Then(s.DeleteTenant())).Methods("DELETE")
	r.Handle("/api/admin/tenants/{id:[0-9]+}/reset-token", admin.Then(s.IssueResetToken())).Methods("POST")
	r.Handle("/api/admin/tenants/{id:[0-9]+}/sandbox", admin.Then(s.UpdateSandbox())).Methods("PATCH")
	r.Handle("/api/admin/tenants/{id:[0-9]+}/whatsapp", admin.Then(s.UpdateWhatsApp())).Methods("PATCH")
	r.Handle("/api/admin/tenants/{id:[0-9]+}/onboarding-qr", admin.Then(s.OnboardingQR())).Methods("GET")

	r.Handle("/api/admin/conversations", admin.Then(s.AdminListConversations())).Methods("GET")
	r.Handle("/api/admin/conversations", admin.Then(s.ResetConversations())).Methods("DELETE")
	r.Handle("/api/admin/conversations/{id:[0-9]+}/messages", admin.Then(s.ListMessages(adminScope))).Methods("GET")
	r.Handle("/api/admin/conversations/{id:[0-9]+}/send", admin.Then(s.SendMessage(adminScope))).Methods("POST")
	r.Handle("/api/admin/conversations/{id:[0-9]+}/auto-reply", admin.Then(s.SetAutoReply(adminScope))).Methods("PATCH")
	r.Handle("/api/admin/test-conversation", admin.Then(s.CreateTestConversation())).Methods("POST")

	r.Handle("/api/admin/faqs", admin.Then(s.AdminListFAQs())).Methods("GET")
	r.Handle("/api/admin/faqs", admin.Then(s.CreateFAQ(adminScope))).Methods("POST")
	r.Handle("/api/admin/faqs/{id:[0-9]+}", admin.Then(s.UpdateFAQ(adminScope))).Methods("PUT")
	r.Handle("/api/admin/faqs/{id:[0-9]+}", admin.Then(s.DeleteFAQ(adminScope))).Methods("DELETE")

	r.Handle("/api/admin/phone-routing", admin.Then(s.ListRouting())).Methods("GET")
	r.Handle("/api/admin/phone-routing", admin.Then(s.SetRouting())).Methods("POST", "PUT")
	r.Handle("/api/admin/phone-routing", admin.Then(s.DeleteRouting())).Methods("DELETE")
	r.Handle("/api/admin/phone-routing/{phone}", admin.Then(s.DeleteRouting())).Methods("DELETE")

	r.Handle("/api/admin/statistics", admin.Then(s.AdminStatistics())).Methods("GET")
	r.Handle("/api/admin/archive", admin.Then(s.ArchiveTranscripts())).Methods("POST")

	r.Handle("/api/admin/feature-requests", admin.Then(s.ListFeatureRequests())).Methods("GET")
	r.Handle("/api/admin/feature-requests", admin.Then(s.CreateFeatureRequest(adminScope))).Methods("POST")
	r.Handle("/api/admin/feature-requests/{id:[0-9]+}", admin.Then(s.UpdateFeatureRequest())).Methods("PATCH")
	r.Handle("/api/admin/feature-requests/{id:[0-9]+}", admin.Then(s.DeleteFeatureRequest())).Methods("DELETE")

	r.Handle("/api/admin/jobs/status", admin.Then(s.JobsStatus())).Methods("GET")
	r.Handle("/api/admin/jobs", admin.Then(s.ListJobs())).Methods("GET")
	r.Handle("/api/admin/jobs/{jobId:[0-9]+}", admin.Then(s.GetJob())).Methods("GET")
	r.Handle("/api/admin/jobs/{jobId:[0-9]+}/retry", admin.Then(s.RetryJob())).Methods("POST")

	r.Handle("/api/admin/test/whatsapp-config", admin.Then(s.WhatsAppConfig())).Methods("GET")

	r.NotFoundHandler = c.Then(s.NotFound())

	return s.cors(r)
}
