package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how admin-only checks should behave. A zero AdminID
// disables the check.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// Allowed reports whether the sender of c passes the admin check.
func (o AdminOptions) Allowed(c tele.Context) bool {
	if o.AdminID == 0 {
		return true
	}
	u := c.Sender()
	return u != nil && u.ID == o.AdminID
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.Allowed(c) {
				return next(c)
			}
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
