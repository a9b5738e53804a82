package court

import "errors"

var (
	ErrCourtDocumentAbsent     = errors.New("court document is not present")
	ErrCaseNotInitiated        = errors.New("prosecution case has not been initiated")
	ErrCaseAlreadyInitiated    = errors.New("prosecution case already initiated")
	ErrDocumentAlreadyUploaded = errors.New("document upload already recorded")
	ErrHearingNotListed        = errors.New("hearing has not been listed")
	ErrHearingAlreadyResulted  = errors.New("hearing already resulted")
)
