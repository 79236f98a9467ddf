package exporter

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	sheetsScope   = "https://www.googleapis.com/auth/spreadsheets"
	sheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
)

// serviceAccount is the subset of a Google service-account credentials
// file the sink needs.
type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// GoogleSheetsSink appends rows to a Google spreadsheet through the Sheets
// REST API, authenticating with a service-account JWT grant.
type GoogleSheetsSink struct {
	spreadsheetID string
	account       serviceAccount
	signingKey    *rsa.PrivateKey

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewGoogleSheetsSink parses the service-account credentials JSON and
// builds a sink for the given spreadsheet.
func NewGoogleSheetsSink(credentialsJSON, spreadsheetID string) (*GoogleSheetsSink, error) {
	var account serviceAccount
	if err := json.Unmarshal([]byte(credentialsJSON), &account); err != nil {
		return nil, errors.Wrap(err, "parse service account credentials")
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, errors.New("service account credentials missing client_email or private_key")
	}
	if account.TokenURI == "" {
		account.TokenURI = "https://oauth2.googleapis.com/token"
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, errors.Wrap(err, "parse service account private key")
	}
	return &GoogleSheetsSink{
		spreadsheetID: spreadsheetID,
		account:       account,
		signingKey:    key,
	}, nil
}

// token returns a cached access token, exchanging a fresh JWT assertion
// when the cached one is missing or near expiry.
func (s *GoogleSheetsSink) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Until(s.tokenExpiry) > time.Minute {
		return s.accessToken, nil
	}

	now := time.Now()
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   s.account.ClientEmail,
		"scope": sheetsScope,
		"aud":   s.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}).SignedString(s.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "sign token assertion")
	}

	var tokenRsp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	var code int
	err = gout.POST(s.account.TokenURI).
		WithContext(ctx).
		SetWWWForm(gout.H{
			"grant_type": "urn:ietf:params:oauth:grant-type:jwt-bearer",
			"assertion":  assertion,
		}).
		BindJSON(&tokenRsp).
		Code(&code).
		Do()
	if err != nil {
		return "", errors.Wrap(err, "exchange token")
	}
	if code != http.StatusOK || tokenRsp.AccessToken == "" {
		return "", errors.Errorf("token endpoint returned status %d", code)
	}

	s.accessToken = tokenRsp.AccessToken
	s.tokenExpiry = now.Add(time.Duration(tokenRsp.ExpiresIn) * time.Second)
	zap.L().Info("authenticated with Google Sheets API",
		zap.String("client_email", s.account.ClientEmail))
	return s.accessToken, nil
}

// EnsureHeader writes the header row when the first sheet row is empty.
func (s *GoogleSheetsSink) EnsureHeader(ctx context.Context) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}

	var valuesRsp struct {
		Values [][]interface{} `json:"values"`
	}
	var code int
	url := fmt.Sprintf("%s/%s/values/A1:D1", sheetsBaseURL, s.spreadsheetID)
	err = gout.GET(url).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		BindJSON(&valuesRsp).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "read header row")
	}
	if code != http.StatusOK {
		return errors.Errorf("sheets API returned status %d reading header", code)
	}
	if len(valuesRsp.Values) > 0 && len(valuesRsp.Values[0]) > 0 {
		return nil
	}

	header := make([]interface{}, len(HeaderRow))
	for i, h := range HeaderRow {
		header[i] = h
	}
	return s.append(ctx, token, header)
}

func (s *GoogleSheetsSink) AppendRow(ctx context.Context, row Row) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.append(ctx, token, []interface{}{
		row.Timestamp, row.DownloadMbps, row.UploadMbps, row.PingMs,
	})
}

func (s *GoogleSheetsSink) append(ctx context.Context, token string, values []interface{}) error {
	var code int
	url := fmt.Sprintf("%s/%s/values/A1:append?valueInputOption=RAW", sheetsBaseURL, s.spreadsheetID)
	err := gout.POST(url).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		SetJSON(gout.H{"values": []interface{}{values}}).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "append row")
	}
	if code != http.StatusOK {
		return errors.Errorf("sheets API returned status %d appending row", code)
	}
	return nil
}
