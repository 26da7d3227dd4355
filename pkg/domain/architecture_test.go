package domain

import (
	"testing"

	"fpoadmin/testutil"
)

// The record model and change-set protocol are shared by the server, the
// HTTP gateway and the CLI, so they must not pull in any of them.
func TestDomainDoesNotImportInternalOrTransport(t *testing.T) {
	forbidden := testutil.Either(testutil.InternalImportForbidden, testutil.TransportImportForbidden)
	testutil.AssertNoDirectImports(t, ".", forbidden, "domain must stay transport independent")
	testutil.AssertNoDirectImports(t, "attribute", forbidden, "schemas must stay transport independent")
}
