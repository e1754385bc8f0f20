// Package biometric defines the finger modality vocabulary shared by the
// enrollment, verification and HTTP layers.
//
// An ImageSet names one image file per modality. Each operation declares the
// modalities it requires up front (EnrollmentFields, SimilarityFields) so
// validation never depends on whatever fields a client happened to send.
package biometric
