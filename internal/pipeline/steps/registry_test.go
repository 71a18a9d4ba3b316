package steps

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRegistry(t *testing.T) {
	expected := []Kind{
		KindInspectRunStatus, KindIngestAndValidateInitial, KindResumeFromCorrectedFile,
		KindPublishErrorReportInternal, KindPublishErrorReportPartner,
		KindWaitForInitialUpload, KindWaitForPartnerCorrection, KindHandlePersistentFailure,
	}

	for _, kind := range expected {
		def, ok := StepRegistry[kind]
		require.True(t, ok, "Step %s should be in registry", kind)
		assert.Equal(t, kind, def.Kind)
		assert.NotEmpty(t, def.Category)
		assert.NotEmpty(t, def.Description)
	}
	assert.Len(t, StepRegistry, len(expected))
}

func TestOnlyWaitStepsWait(t *testing.T) {
	for kind := range StepRegistry {
		want := kind == KindWaitForPartnerCorrection || kind == KindWaitForInitialUpload
		assert.Equal(t, want, kind.IsWait(), kind)
	}
	assert.False(t, Kind("bogus").IsWait())
}

func TestLookup_UnknownStep(t *testing.T) {
	_, err := Lookup("unknown_step")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestNew(t *testing.T) {
	step, err := New(KindResumeFromCorrectedFile, "corrected file detected", "/uploads/acme/fix.csv")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/acme/fix.csv", step.File)

	_, err = New(KindIngestAndValidateInitial, "new run", "")
	var missing *MissingFileError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, KindIngestAndValidateInitial, missing.Kind)

	_, err = New("bogus", "", "")
	assert.Error(t, err)

	step, err = New(KindWaitForPartnerCorrection, "awaiting upload", "")
	require.NoError(t, err)
	assert.True(t, step.Kind.IsWait())
}
