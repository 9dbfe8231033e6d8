package bridge

import (
	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/samber/lo"
)

// DecorationInterceptor maps the exchange locals called names onto the
// request decorations of the same name, so connect handlers and lifecycle
// handlers share them. The decorations must be declared with
// Scope.DecorateRequest.
//
//	_ = app.DecorateRequest("user", nil)
//	bridge.Register(app.Scope, bridge.WithInterceptor(bridge.DecorationInterceptor("user")))
func DecorationInterceptor(names ...string) InterceptorFactory {
	return func(req *lifecycle.Request) connect.Interceptor {
		return connect.InterceptorFuncs{
			GetFunc: func(target connect.Locals, name string) (any, bool) {
				if lo.Contains(names, name) {
					return req.Decoration(name)
				}
				return target.Get(name)
			},
			SetFunc: func(target connect.Locals, name string, value any) {
				if lo.Contains(names, name) && req.SetDecoration(name, value) == nil {
					return
				}
				target.Set(name, value)
			},
		}
	}
}
