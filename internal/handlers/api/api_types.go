package api

import "time"

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
	MfaCode         string `json:"mfaCode,omitempty"`
	ChallengeToken  string `json:"challengeToken,omitempty"`
}

type tokenPairResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	TokenType        string `json:"tokenType"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

type mfaRequiredResponse struct {
	MfaRequired    bool   `json:"mfaRequired"`
	ChallengeToken string `json:"challengeToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type passwordResetRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
}

type passwordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	AccountID uint   `json:"accountId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

type mfaSetupResponse struct {
	Secret     string `json:"secret"`
	OtpauthURI string `json:"otpauthUri"`
}

type mfaConfirmRequest struct {
	Code string `json:"code"`
}

type mfaConfirmResponse struct {
	Enabled       bool     `json:"enabled"`
	RecoveryCodes []string `json:"recoveryCodes"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recoveryCodes"`
}

type mfaStatusResponse struct {
	Enabled             bool  `json:"enabled"`
	ActiveRecoveryCodes int64 `json:"activeRecoveryCodes"`
}

type btgGrantRequest struct {
	PatientID uint   `json:"patientId"`
	Minutes   int    `json:"minutes"`
	Reason    string `json:"reason"`
}

type btgGrantResponse struct {
	ConsentID uint      `json:"consentId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type btgConsentInfo struct {
	ConsentID uint      `json:"consentId"`
	PatientID uint      `json:"patientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
