package resources

import (
	"fmt"
	"strings"
)

const (
	projectsPrefix = "socrates://projects/"
	maturitySuffix = "/maturity"
)

// projectIDFromURI extracts {project_id} from a maturity resource URI.
func projectIDFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, projectsPrefix)
	if !ok {
		return "", fmt.Errorf("unexpected resource URI %q", uri)
	}
	id, ok := strings.CutSuffix(rest, maturitySuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("unexpected resource URI %q", uri)
	}
	return id, nil
}
