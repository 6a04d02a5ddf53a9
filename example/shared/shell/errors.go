package shell

import "errors"

// ErrNilRepositorySupplied is returned when a command handler is created
// without a repository.
var ErrNilRepositorySupplied = errors.New("nil repository supplied")

// ErrNilViewsSupplied is returned when a query handler is created without a
// view source.
var ErrNilViewsSupplied = errors.New("nil views supplied")
