package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Enum_RejectsOutOfSetValues(t *testing.T) {
	//Arrange
	var status RequestStatus

	//Act
	err := json.Unmarshal([]byte(`"archived"`), &status)

	//Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, RequestStatus(""), status)
}

func Test_Enum_ScanRejectsUnknownStoredValue(t *testing.T) {
	var status AppointmentStatus
	assert.Error(t, status.Scan([]byte("rescheduled")))
	assert.NoError(t, status.Scan([]byte("no_show")))
	assert.Equal(t, AppointmentNoShow, status)
}

func Test_Enum_ValueRefusesToWriteUnknown(t *testing.T) {
	_, err := RequestStatus("done").Value()
	assert.Error(t, err)

	v, err := RequestSubmitted.Value()
	assert.NoError(t, err)
	assert.Equal(t, "submitted", v)
}

func Test_ContactTime_EmptyIsNull(t *testing.T) {
	v, err := ContactTime("").Value()
	assert.NoError(t, err)
	assert.Nil(t, v)

	var ct ContactTime
	assert.NoError(t, ct.Scan(nil))
	assert.Equal(t, ContactTime(""), ct)
}

func Test_ChatStatus_Advances(t *testing.T) {
	assert.True(t, ChatSent.Advances(ChatDelivered))
	assert.True(t, ChatDelivered.Advances(ChatRead))
	assert.True(t, ChatSent.Advances(ChatRead))
	assert.False(t, ChatRead.Advances(ChatDelivered))
	assert.False(t, ChatFailed.Advances(ChatRead))
}

func Test_Money(t *testing.T) {
	cases := []struct {
		in   string
		want Money
		out  string
	}{
		{"12.50", 1250, "12.50"},
		{"12.5", 1250, "12.50"},
		{"7", 700, "7.00"},
		{"-3.05", -305, "-3.05"},
		{".99", 99, "0.99"},
		{"+4.10", 410, "4.10"},
	}
	for _, c := range cases {
		m, err := ParseMoney(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, m)
		assert.Equal(t, c.out, m.String())
	}

	for _, bad := range []string{"", "abc", "1.234", "1.", "1.-5", "--5", "+-3", "-+3", "1.+5", "+", "-", ".", "1 000", "1,50"} {
		_, err := ParseMoney(bad)
		assert.Error(t, err, bad)
	}
}

func Test_Money_JSONAcceptsNumbersAndStrings(t *testing.T) {
	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"10.25","b":3.5}`), &v))
	assert.Equal(t, Money(1025), v.A)
	assert.Equal(t, Money(350), v.B)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"10.25","b":"3.50"}`, string(out))
}

func Test_Money_ScanNumericText(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan([]byte("150.00")))
	assert.Equal(t, Money(15000), m)
}

func Test_Date(t *testing.T) {
	d, err := ParseDate("2026-03-14")
	require.NoError(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-14"`, string(b))

	var zero Date
	b, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	v, err := zero.Value()
	assert.NoError(t, err)
	assert.Nil(t, v)

	var scanned Date
	require.NoError(t, scanned.Scan(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)))
	assert.True(t, scanned.Equal(d))

	_, err = ParseDate("14/03/2026")
	assert.Error(t, err)
}

func Test_ClockTime(t *testing.T) {
	c, err := ParseClockTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, NewClockTime(9, 30), c)
	assert.Equal(t, "09:30", c.String())

	c, err = ParseClockTime("17:45:00")
	require.NoError(t, err)
	assert.Equal(t, "17:45", c.String())

	var scanned ClockTime
	require.NoError(t, scanned.Scan(time.Date(0, 1, 1, 13, 15, 0, 0, time.UTC)))
	assert.Equal(t, NewClockTime(13, 15), scanned)

	v, err := NewClockTime(8, 5).Value()
	require.NoError(t, err)
	assert.Equal(t, "08:05:00", v)

	_, err = ParseClockTime("25:00")
	assert.Error(t, err)
}

func Test_Slot_OverlapIsHalfOpen(t *testing.T) {
	day := NewDate(2026, 5, 4)
	nine := Slot{Date: day, Start: NewClockTime(9, 0), End: NewClockTime(10, 0)}

	assert.True(t, nine.Overlaps(Slot{Date: day, Start: NewClockTime(9, 30), End: NewClockTime(10, 30)}))
	assert.True(t, nine.Overlaps(Slot{Date: day, Start: NewClockTime(8, 0), End: NewClockTime(11, 0)}))
	assert.False(t, nine.Overlaps(Slot{Date: day, Start: NewClockTime(10, 0), End: NewClockTime(11, 0)}), "back-to-back slots do not overlap")
	assert.False(t, nine.Overlaps(Slot{Date: NewDate(2026, 5, 5), Start: NewClockTime(9, 0), End: NewClockTime(10, 0)}))
}

func Test_Attachments_NeverNull(t *testing.T) {
	var a Attachments
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	v, err := a.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	require.NoError(t, a.Scan([]byte(`[{"path":"requests/1/x.pdf","original_name":"x.pdf","size_bytes":12}]`)))
	assert.Equal(t, Attachments{{Path: "requests/1/x.pdf", OriginalName: "x.pdf", SizeBytes: 12}}, a)
}

func Test_NewContactPreferences_DedupesAndValidates(t *testing.T) {
	prefs, err := NewContactPreferences([]string{"email", "whatsapp", "email"})
	require.NoError(t, err)
	assert.Equal(t, ContactPreferences{ContactEmail, ContactWhatsapp}, prefs)
	assert.True(t, prefs.Has(ContactWhatsapp))

	_, err = NewContactPreferences([]string{"pigeon"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func Test_ValidationError(t *testing.T) {
	v := NewValidationError()
	assert.NoError(t, v.Err())

	v.Add("subject", "is required")
	v.Add("subject", "second message is ignored")
	v.Add("type", "is invalid")

	err := v.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: subject: is required; type: is invalid", err.Error())
}

func Test_ErrorTaxonomy(t *testing.T) {
	conflict := &ConflictError{Entity: "appointment", ID: 4, Action: "cancel", From: "completed"}
	assert.True(t, errors.Is(conflict, ErrStateConflict))
	assert.Equal(t, "cannot cancel appointment 4 from status completed", conflict.Error())

	notFound := NotFound("request", 9)
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.False(t, errors.Is(notFound, ErrStateConflict))
}

func Test_Actor(t *testing.T) {
	client := Actor{UserID: 3, Role: RoleClient}
	admin := Actor{UserID: 1, Role: RoleAdmin}

	assert.True(t, client.CanAccess(3))
	assert.False(t, client.CanAccess(4))
	assert.True(t, admin.CanAccess(4))
}
