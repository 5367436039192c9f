package mocks

//go:generate mockery --name Store --srcpkg github.com/pulseboard-labs/pulseboard/internal/core/docstore --output ./docstore --outpkg docstoremocks --with-expecter
//go:generate mockery --name Source --srcpkg github.com/pulseboard-labs/pulseboard/internal/session --output ./session --outpkg sessionmocks --with-expecter
