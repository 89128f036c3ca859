package http

import (
	"net/http"

	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/session"
)

type loginView struct {
	page
	Email string
}

type signupView struct {
	page
	Form     core.Registration
	Business bool
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	view := loginView{page: s.newPage(r, "Sign in", "login")}

	if r.Method == http.MethodGet {
		if view.Session.IsAuthenticated() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		if r.URL.Query().Get("created") == "1" {
			view.Notice = "Account created, you can sign in now"
		}
		s.render(w, r, http.StatusOK, "login_page", view)
		return
	}

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	creds := core.Credentials{
		Email:    sanitizeInput(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
	}
	view.Email = creds.Email

	ctx, cancel := upstream(r.Context())
	defer cancel()
	sess, err := s.deps.Accounts.Login(ctx, creds)
	if err != nil {
		status, msg := userError(err)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Login failed",
			log.FieldOperation, log.OpLogin,
			log.FieldError, err,
			log.FieldStatusCode, status)
		view.Error = msg
		s.render(w, r, status, "login_page", view)
		return
	}

	session.SetCookie(w, sess, s.opts.CookieSecure)
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := upstream(r.Context())
	defer cancel()
	if err := s.deps.Accounts.Logout(ctx, session.FromContext(r.Context())); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Logout failed", log.FieldOperation, log.OpLogout, log.FieldError, err)
	}
	session.ClearCookie(w, s.opts.CookieSecure)
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	view := signupView{page: s.newPage(r, "Create account", "signup")}
	view.Form.UserType = core.UserConsumer

	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "signup_page", view)
		return
	}

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	f := r.PostForm
	reg := core.Registration{
		Email:      sanitizeInput(f.Get("email")),
		Password:   f.Get("password"),
		Name:       sanitizeInput(f.Get("name")),
		Address:    sanitizeInput(f.Get("address")),
		City:       sanitizeInput(f.Get("city")),
		PostalCode: sanitizeInput(f.Get("postalCode")),
		UserType:   core.UserType(ParseIntParam(f, "userType", 0)),
	}
	view.Form = reg
	view.Form.Password = ""
	view.Business = reg.UserType == core.UserBusiness

	ctx, cancel := upstream(r.Context())
	defer cancel()
	if err := s.deps.Accounts.SignUp(ctx, reg); err != nil {
		status, msg := userError(err)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Sign up failed",
			log.FieldOperation, log.OpSignUp,
			log.FieldError, err,
			log.FieldStatusCode, status)
		view.Error = msg
		s.render(w, r, status, "signup_page", view)
		return
	}

	http.Redirect(w, r, "/login?created=1", http.StatusSeeOther)
}
