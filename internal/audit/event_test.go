package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassification_RankOrdersBySensitivity(t *testing.T) {
	require.Less(t, ClassificationPublic.Rank(), ClassificationInternal.Rank())
	require.Less(t, ClassificationInternal.Rank(), ClassificationConfidential.Rank())
	require.Less(t, ClassificationConfidential.Rank(), ClassificationRestricted.Rank())
}

func TestClassification_RankUnrecognizedIsNegative(t *testing.T) {
	require.Equal(t, -1, Classification("bogus").Rank())
}

func TestValidate_RejectsMissingRequiredFields(t *testing.T) {
	base := Event{EventID: "e1", Action: "a", ActorID: "u1", Timestamp: time.Now()}

	require.NoError(t, validate(base))

	missingID := base
	missingID.EventID = ""
	require.Error(t, validate(missingID))

	missingAction := base
	missingAction.Action = ""
	require.Error(t, validate(missingAction))

	missingActor := base
	missingActor.ActorID = ""
	require.Error(t, validate(missingActor))

	missingTimestamp := base
	missingTimestamp.Timestamp = time.Time{}
	require.Error(t, validate(missingTimestamp))
}
