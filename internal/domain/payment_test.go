package domain

import "testing"

func TestAttemptID_Deterministic(t *testing.T) {
	got := AttemptID("pay_123", 0)
	want := "pay_123_0"
	if got != want {
		t.Errorf("AttemptID() = %q, want %q", got, want)
	}

	if AttemptID("pay_123", 0) != AttemptID("pay_123", 0) {
		t.Error("AttemptID should be deterministic for the same inputs")
	}
}

func TestAttemptID_UniquePerOrdinal(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		id := AttemptID("pay_123", i)
		if seen[id] {
			t.Errorf("duplicate attempt id %q at ordinal %d", id, i)
		}
		seen[id] = true
	}
}

func TestNextAttempt_CarriesStaticFields(t *testing.T) {
	ref := "ref_1"
	attempt := &PaymentAttempt{
		AttemptID:            "pay_1_0",
		PaymentID:            "pay_1",
		Ordinal:              0,
		Status:               StatusFailure,
		Connector:            "stripe",
		ConnectorReferenceID: &ref,
		AuthenticationType:   AuthNoThreeDS,
		MerchantID:           "m_1",
		ProfileID:            "prof_1",
		AmountCents:          5000,
		Currency:             "USD",
		CaptureMethod:        "automatic",
		ClientSource:         "sdk",
	}

	next := attempt.NextAttempt(Candidate{Connector: "adyen"}, false)

	if next.AttemptID != "pay_1_1" {
		t.Errorf("next attempt id = %q, want %q", next.AttemptID, "pay_1_1")
	}
	if next.Ordinal != 1 {
		t.Errorf("next ordinal = %d, want 1", next.Ordinal)
	}
	if next.Connector != "adyen" {
		t.Errorf("next connector = %q, want %q", next.Connector, "adyen")
	}
	if next.MerchantID != "m_1" || next.ProfileID != "prof_1" {
		t.Error("merchant and profile ids should carry over")
	}
	if next.AmountCents != 5000 || next.Currency != "USD" {
		t.Error("amount and currency should carry over")
	}
	if next.ClientSource != "sdk" {
		t.Error("client source should carry over")
	}
}

func TestNextAttempt_ResetsOutcomeFields(t *testing.T) {
	txn := "txn_1"
	code := "CARD_DECLINED"
	attempt := &PaymentAttempt{
		AttemptID:              "pay_1_0",
		PaymentID:              "pay_1",
		Status:                 StatusAuthorizationFailed,
		Connector:              "stripe",
		ConnectorTransactionID: &txn,
		ErrorCode:              &code,
		ExternalLatencyMs:      240,
		AmountCents:            5000,
	}

	next := attempt.NextAttempt(Candidate{Connector: "adyen"}, false)

	if next.Status != StatusStarted {
		t.Errorf("next status = %q, want %q", next.Status, StatusStarted)
	}
	if next.ConnectorTransactionID != nil {
		t.Error("connector transaction id should reset")
	}
	if next.ErrorCode != nil {
		t.Error("error code should reset")
	}
	if next.ExternalLatencyMs != 0 {
		t.Errorf("external latency = %d, want 0", next.ExternalLatencyMs)
	}
	if next.AmountCapturableCents != 5000 {
		t.Errorf("amount capturable = %d, want full amount", next.AmountCapturableCents)
	}
}

func TestNextAttempt_StepUpForcesThreeDS(t *testing.T) {
	attempt := &PaymentAttempt{
		PaymentID:          "pay_1",
		Connector:          "stripe",
		AuthenticationType: AuthNoThreeDS,
	}

	next := attempt.NextAttempt(Candidate{Connector: "stripe"}, true)
	if next.AuthenticationType != AuthThreeDS {
		t.Errorf("step-up auth type = %q, want %q", next.AuthenticationType, AuthThreeDS)
	}

	plain := attempt.NextAttempt(Candidate{Connector: "stripe"}, false)
	if plain.AuthenticationType != AuthNoThreeDS {
		t.Errorf("plain retry auth type = %q, want %q", plain.AuthenticationType, AuthNoThreeDS)
	}
}

func TestAttemptStatus_IsTerminalFailure(t *testing.T) {
	tests := []struct {
		status AttemptStatus
		want   bool
	}{
		{StatusStarted, false},
		{StatusPending, false},
		{StatusAuthorized, false},
		{StatusCharged, false},
		{StatusVoided, false},
		{StatusAuthenticationFailed, true},
		{StatusAuthorizationFailed, true},
		{StatusFailure, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminalFailure(); got != tt.want {
			t.Errorf("IsTerminalFailure(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAttemptStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status AttemptStatus
		want   bool
	}{
		{StatusStarted, false},
		{StatusPending, false},
		{StatusAuthorized, false},
		{StatusCharged, true},
		{StatusVoided, true},
		{StatusFailure, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
