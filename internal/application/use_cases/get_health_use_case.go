package use_cases

import (
	"context"

	"depositwatch/internal/application/dto"
	portsin "depositwatch/internal/application/ports/in"
	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type getHealthUseCase struct {
	storageDriver string
	registry      portsout.ChainRegistry
}

func NewGetHealthUseCase(storageDriver string, registry portsout.ChainRegistry) portsin.GetHealthUseCase {
	return &getHealthUseCase{
		storageDriver: storageDriver,
		registry:      registry,
	}
}

func (u *getHealthUseCase) Execute(_ context.Context, _ dto.GetHealthCommand) (dto.HealthOutput, *apperrors.AppError) {
	status := valueobjects.NewHealthyStatus()

	output := dto.HealthOutput{
		Status:        status.String(),
		StorageDriver: u.storageDriver,
	}
	if u.registry != nil {
		for _, chain := range u.registry.Chains() {
			output.Chains = append(output.Chains, chain.String())
		}
	}

	return output, nil
}
