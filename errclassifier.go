// SPDX-License-Identifier: GPL-3.0-or-later

package fedcore

import "github.com/bassosimone/errclass"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNRESET") that let operators grep logs for a specific failure class
// without parsing error strings.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using [errclass.New], which maps
// errno-level causes (ECONNRESET, ETIMEDOUT, ...) and a handful of
// higher-level sentinels to short labels. Unknown errors classify as
// errclass.EGENERIC; a nil error classifies as "".
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)
