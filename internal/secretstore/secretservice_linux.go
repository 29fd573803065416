//go:build linux

package secretstore

import (
	"encoding/hex"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Freedesktop Secret Service constants.
const (
	secretsBusName    = "org.freedesktop.secrets"
	secretsBasePath   = dbus.ObjectPath("/org/freedesktop/secrets")
	defaultCollection = dbus.ObjectPath("/org/freedesktop/secrets/aliases/default")

	serviceIface    = "org.freedesktop.Secret.Service"
	collectionIface = "org.freedesktop.Secret.Collection"
	itemIface       = "org.freedesktop.Secret.Item"
	promptIface     = "org.freedesktop.Secret.Prompt"
)

// dbusSecret mirrors the Secret Service wire struct
// (session, parameters, value, content_type).
type dbusSecret struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// secretService talks to the session keyring (GNOME Keyring, KWallet's
// Secret Service bridge, KeePassXC) over D-Bus.
type secretService struct {
	conn    *dbus.Conn
	session dbus.ObjectPath
}

func openPlatform() (Store, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: no session bus: %v", ErrKeyringUnavailable, err)
	}

	svc := conn.Object(secretsBusName, secretsBasePath)

	// Plain session: secrets cross the bus unencrypted, which is the
	// norm for same-user session buses; dh-ietf1024 would only guard
	// against a bus-level eavesdropper that already owns the session.
	var output dbus.Variant
	var session dbus.ObjectPath
	if err := svc.Call(serviceIface+".OpenSession", 0, "plain", dbus.MakeVariant("")).
		Store(&output, &session); err != nil {
		return nil, fmt.Errorf("%w: open session: %v", ErrKeyringUnavailable, err)
	}

	return &secretService{conn: conn, session: session}, nil
}

// GetOrCreateMasterKey looks the key up by attributes and creates it on
// first run.
func (s *secretService) GetOrCreateMasterKey() ([]byte, error) {
	attrs := map[string]string{
		"service": serviceAttribute,
		"purpose": keyAttribute,
	}

	if key, found, err := s.lookup(attrs); err != nil {
		return nil, err
	} else if found {
		return key, nil
	}

	key, err := generateMasterKey()
	if err != nil {
		return nil, err
	}
	if err := s.store(attrs, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *secretService) lookup(attrs map[string]string) ([]byte, bool, error) {
	svc := s.conn.Object(secretsBusName, secretsBasePath)

	var unlocked, locked []dbus.ObjectPath
	if err := svc.Call(serviceIface+".SearchItems", 0, attrs).Store(&unlocked, &locked); err != nil {
		return nil, false, fmt.Errorf("secretstore: search items: %w", err)
	}

	if len(unlocked) == 0 && len(locked) > 0 {
		var err error
		unlocked, err = s.unlock(locked)
		if err != nil {
			return nil, false, err
		}
	}
	if len(unlocked) == 0 {
		return nil, false, nil
	}

	item := s.conn.Object(secretsBusName, unlocked[0])
	var secret dbusSecret
	if err := item.Call(itemIface+".GetSecret", 0, s.session).Store(&secret); err != nil {
		return nil, false, fmt.Errorf("secretstore: get secret: %w", err)
	}

	key, err := decodeKey(secret.Value)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (s *secretService) store(attrs map[string]string, key []byte) error {
	collection := s.conn.Object(secretsBusName, defaultCollection)

	properties := map[string]dbus.Variant{
		"org.freedesktop.Secret.Item.Label":      dbus.MakeVariant("realtypecoach master key"),
		"org.freedesktop.Secret.Item.Attributes": dbus.MakeVariant(attrs),
	}
	secret := dbusSecret{
		Session:     s.session,
		Value:       []byte(hex.EncodeToString(key)),
		ContentType: "text/plain",
	}

	var itemPath, promptPath dbus.ObjectPath
	if err := collection.Call(collectionIface+".CreateItem", 0, properties, secret, true).
		Store(&itemPath, &promptPath); err != nil {
		return fmt.Errorf("secretstore: create item: %w", err)
	}
	if itemPath == "/" && promptPath != "/" {
		if err := s.prompt(promptPath); err != nil {
			return err
		}
	}
	return nil
}

// unlock asks the service to unlock the given items, prompting the user
// through the keyring agent when needed.
func (s *secretService) unlock(paths []dbus.ObjectPath) ([]dbus.ObjectPath, error) {
	svc := s.conn.Object(secretsBusName, secretsBasePath)

	var unlocked []dbus.ObjectPath
	var promptPath dbus.ObjectPath
	if err := svc.Call(serviceIface+".Unlock", 0, paths).Store(&unlocked, &promptPath); err != nil {
		return nil, fmt.Errorf("secretstore: unlock: %w", err)
	}
	if promptPath != "/" {
		if err := s.prompt(promptPath); err != nil {
			return nil, err
		}
		// Once the prompt completes without being dismissed, the
		// requested items are unlocked; return the original paths.
		return paths, nil
	}
	return unlocked, nil
}

// prompt completes a Secret Service prompt and waits for its result.
func (s *secretService) prompt(path dbus.ObjectPath) error {
	if err := s.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(promptIface),
		dbus.WithMatchMember("Completed"),
	); err != nil {
		return fmt.Errorf("secretstore: subscribe prompt: %w", err)
	}
	signals := make(chan *dbus.Signal, 1)
	s.conn.Signal(signals)
	defer s.conn.RemoveSignal(signals)

	prompt := s.conn.Object(secretsBusName, path)
	if err := prompt.Call(promptIface+".Prompt", 0, "").Err; err != nil {
		return fmt.Errorf("secretstore: prompt: %w", err)
	}

	for sig := range signals {
		if sig.Path != path || sig.Name != promptIface+".Completed" {
			continue
		}
		if len(sig.Body) >= 1 {
			if dismissed, ok := sig.Body[0].(bool); ok && dismissed {
				return fmt.Errorf("%w: keyring prompt dismissed", ErrKeyringUnavailable)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: prompt signal channel closed", ErrKeyringUnavailable)
}

func decodeKey(value []byte) ([]byte, error) {
	key, err := hex.DecodeString(string(value))
	if err != nil {
		return nil, fmt.Errorf("secretstore: stored key is not hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("secretstore: stored key is %d bytes, want %d", len(key), KeySize)
	}
	return key, nil
}
