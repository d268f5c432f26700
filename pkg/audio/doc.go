// Package audio groups the audio handling used by the verifier:
//
//   - normalize: decode any container to 16 kHz mono float samples
//   - resampler: sample-rate and channel conversion
//   - wav: 16-bit PCM WAV encoding of mined clips
package audio
