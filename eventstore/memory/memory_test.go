package memory_test

import (
	"testing"

	"github.com/eventfold/eventfold/eventstore/memory"
	"github.com/eventfold/eventfold/eventstore/suite"
)

func TestSuite(t *testing.T) {
	f := func() (suite.Store, func(), error) {
		es := memory.Create()
		return es, func() { es.Close() }, nil
	}
	suite.Test(t, f)
}
