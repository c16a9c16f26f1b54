package capability

import (
	"path"
	"strings"
)

// CleanObjectPath normaliza la key de un objeto de Storage: sin barra inicial,
// sin segmentos vacíos y sin "..". Devuelve CodeInvalidArgument si no es válida.
func CleanObjectPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", NewError(CodeInvalidArgument, "path is required")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", NewError(CodeInvalidArgument, "path must not contain '..'")
		}
	}
	clean := path.Clean(p)
	if clean == "." || strings.HasSuffix(p, "/") {
		return "", NewError(CodeInvalidArgument, "path must name an object")
	}
	return clean, nil
}
