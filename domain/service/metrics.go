package service

import (
	"github.com/evnchn/3D-Print-Me/domain/model"
)

type noopMetrics struct{}

func (noopMetrics) RecordAuth(string, model.ErrorKind, bool) {}
func (noopMetrics) RecordTokenMinted(model.TokenKind)        {}
