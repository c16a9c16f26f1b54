package identity

import "context"

// Pipeline encadena verificación y resolución. Lo usan ambas variantes del middleware.
type Pipeline struct {
	Verifier *Verifier
	Resolver *Resolver
}

func NewPipeline(v *Verifier, r *Resolver) *Pipeline {
	return &Pipeline{Verifier: v, Resolver: r}
}

// Authenticate ejecuta header → token → identidad → User. Los errores son los
// sentinels del paquete (credencial, provider o resolución).
func (p *Pipeline) Authenticate(ctx context.Context, authorization string) (*AuthContext, error) {
	token, err := ExtractBearer(authorization)
	if err != nil {
		return nil, err
	}
	id, err := p.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	res, err := p.Resolver.Resolve(ctx, *id)
	if err != nil {
		return nil, err
	}
	return NewAuthContext(*id, res), nil
}
