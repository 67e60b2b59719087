// Package codec serializes signatures to a versioned CBOR form and seals them
// with XChaCha20-Poly1305 before they are persisted.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/okian/biomatch/internal/domain/model"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Version is the current template layout version.
const Version = 1

// Template kinds, bound into the ciphertext as associated data.
const (
	KindEye         = "eye"
	KindFingerprint = "fingerprint"
)

const keyInfo = "biomatch template key v1"

type eyeWire struct {
	Vector      []float64  `cbor:"1,keyasint"`
	LeftCenter  [2]float64 `cbor:"2,keyasint"`
	RightCenter [2]float64 `cbor:"3,keyasint"`
	Quality     float64    `cbor:"4,keyasint"`
}

type fingerprintWire struct {
	Vector    []byte    `cbor:"1,keyasint"`
	Histogram []float64 `cbor:"2,keyasint"`
	Keypoints int       `cbor:"3,keyasint"`
}

type envelope struct {
	Version     int              `cbor:"1,keyasint"`
	Kind        string           `cbor:"2,keyasint"`
	Eye         *eyeWire         `cbor:"3,keyasint,omitempty"`
	Fingerprint *fingerprintWire `cbor:"4,keyasint,omitempty"`
}

// Codec turns signatures into encrypted templates and back. It is safe for
// concurrent use.
type Codec struct {
	aead cipher.AEAD
	enc  cbor.EncMode
	dec  cbor.DecMode
}

// New derives the template key from secret with HKDF-SHA256.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("init cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 4096,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("init cbor decoder: %w", err)
	}
	return &Codec{aead: aead, enc: enc, dec: dec}, nil
}

// Encrypt seals plaintext. The nonce is prepended to the ciphertext.
func (c *Codec) Encrypt(kind string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, []byte(kind)), nil
}

// Decrypt opens a blob produced by Encrypt for the same kind.
func (c *Codec) Decrypt(kind string, blob []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(blob) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrTemplateDecode)
	}
	plain, err := c.aead.Open(nil, blob[:ns], blob[ns:], []byte(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateDecode, err)
	}
	return plain, nil
}

// EncodeEye serializes and encrypts an eye signature.
func (c *Codec) EncodeEye(sig model.EyeSignature) ([]byte, error) {
	if err := checkEye(sig.FeatureVector); err != nil {
		return nil, err
	}
	return c.seal(envelope{
		Version: Version,
		Kind:    KindEye,
		Eye: &eyeWire{
			Vector:      sig.FeatureVector,
			LeftCenter:  sig.Landmarks.LeftCenter,
			RightCenter: sig.Landmarks.RightCenter,
			Quality:     sig.QualityScore,
		},
	})
}

// DecodeEye decrypts and validates an eye template.
func (c *Codec) DecodeEye(blob []byte) (model.EyeSignature, error) {
	env, err := c.open(KindEye, blob)
	if err != nil {
		return model.EyeSignature{}, err
	}
	if env.Eye == nil {
		return model.EyeSignature{}, fmt.Errorf("%w: missing eye payload", ErrMalformedSignature)
	}
	if err := checkEye(env.Eye.Vector); err != nil {
		return model.EyeSignature{}, err
	}
	return model.EyeSignature{
		FeatureVector: env.Eye.Vector,
		Landmarks: model.EyeCenters{
			LeftCenter:  env.Eye.LeftCenter,
			RightCenter: env.Eye.RightCenter,
		},
		QualityScore: env.Eye.Quality,
	}, nil
}

// EncodeFingerprint serializes and encrypts a fingerprint signature.
func (c *Codec) EncodeFingerprint(sig model.FingerprintSignature) ([]byte, error) {
	if err := checkFingerprint(sig.FeatureVector, sig.TextureHistogram); err != nil {
		return nil, err
	}
	return c.seal(envelope{
		Version: Version,
		Kind:    KindFingerprint,
		Fingerprint: &fingerprintWire{
			Vector:    sig.FeatureVector,
			Histogram: sig.TextureHistogram,
			Keypoints: sig.KeypointsCount,
		},
	})
}

// DecodeFingerprint decrypts and validates a fingerprint template.
func (c *Codec) DecodeFingerprint(blob []byte) (model.FingerprintSignature, error) {
	env, err := c.open(KindFingerprint, blob)
	if err != nil {
		return model.FingerprintSignature{}, err
	}
	if env.Fingerprint == nil {
		return model.FingerprintSignature{}, fmt.Errorf("%w: missing fingerprint payload", ErrMalformedSignature)
	}
	if err := checkFingerprint(env.Fingerprint.Vector, env.Fingerprint.Histogram); err != nil {
		return model.FingerprintSignature{}, err
	}
	return model.FingerprintSignature{
		FeatureVector:    env.Fingerprint.Vector,
		TextureHistogram: env.Fingerprint.Histogram,
		KeypointsCount:   env.Fingerprint.Keypoints,
	}, nil
}

func (c *Codec) seal(env envelope) ([]byte, error) {
	plain, err := c.enc.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s template: %w", env.Kind, err)
	}
	return c.Encrypt(env.Kind, plain)
}

func (c *Codec) open(kind string, blob []byte) (envelope, error) {
	plain, err := c.Decrypt(kind, blob)
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := c.dec.Unmarshal(plain, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %w", ErrTemplateDecode, err)
	}
	if env.Version != Version {
		return envelope{}, fmt.Errorf("%w: unsupported version %d", ErrTemplateDecode, env.Version)
	}
	if env.Kind != kind {
		return envelope{}, fmt.Errorf("%w: kind %q, want %q", ErrMalformedSignature, env.Kind, kind)
	}
	return env, nil
}

// Shorter vectors are legacy layouts and get zero-padded by the comparator;
// longer ones or non-finite values cannot be repaired.
func checkEye(v []float64) error {
	if len(v) > model.EyeFeatureLen {
		return fmt.Errorf("%w: eye vector has %d elements, max %d", ErrMalformedSignature, len(v), model.EyeFeatureLen)
	}
	return checkFinite("eye vector", v)
}

func checkFingerprint(v []byte, hist []float64) error {
	if len(v) > model.FingerprintFeatureLen {
		return fmt.Errorf("%w: fingerprint vector has %d elements, max %d", ErrMalformedSignature, len(v), model.FingerprintFeatureLen)
	}
	if len(hist) > model.FingerprintHistogramLen {
		return fmt.Errorf("%w: texture histogram has %d bins, max %d", ErrMalformedSignature, len(hist), model.FingerprintHistogramLen)
	}
	return checkFinite("texture histogram", hist)
}

func checkFinite(name string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrMalformedSignature, name, i)
		}
	}
	return nil
}
