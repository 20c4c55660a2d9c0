package sql_test

import (
	"testing"

	"github.com/eventfold/eventfold/eventstore/sql"
	"github.com/eventfold/eventfold/eventstore/suite"
)

func TestSuite(t *testing.T) {
	f := func() (suite.Store, func(), error) {
		es, err := sql.Open(":memory:")
		if err != nil {
			return nil, nil, err
		}
		return es, func() { es.Close() }, nil
	}
	suite.Test(t, f)
}
